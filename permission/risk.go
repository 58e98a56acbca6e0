package permission

import (
	"path"
	"strings"
)

// Risk weights from spec §4.K. Scores are additive and clamped to [0,1] on
// return; SPEC_FULL.md Open Question 3 confirms no caller inspects the
// pre-clamp magnitude, so the clamp can be the very last step.
const (
	riskDelete            = 0.7
	riskWriteOrEdit       = 0.25
	riskModifiesTests     = 0.3
	riskBash              = 0.2
	riskNetwork           = 0.15
	riskDestructiveCmd    = 0.6
	riskLargePayload      = 0.2
	riskOutsideProject    = 0.5
	riskDotfile           = 0.2
	riskDependencyOrBuild = 0.2
	riskPermissionsConfig = 0.3

	largePayloadBytes = 10 * 1024
)

var destructiveSubstrings = []string{"rm -rf", "git reset --hard", "sudo "}

var dependencyManifests = []string{
	"go.mod", "go.sum", "package.json", "package-lock.json", "yarn.lock",
	"requirements.txt", "poetry.lock", "cargo.toml", "cargo.lock",
	"gemfile", "gemfile.lock", "pom.xml", "build.gradle",
}

// RiskInput carries every signal the risk scorer needs (spec §4.K step 2).
type RiskInput struct {
	Operation       Operation
	FilePath        string
	ModifiesTests   bool
	RequiresBash    bool
	RequiresNetwork bool
	Command         string // shell command text, if the tool executes one
	PayloadBytes    int
	OutsideProject  bool
}

// RiskReason pairs a fired signal with its contribution, for ApprovalRecord.Reasons.
type RiskReason struct {
	Reason string
	Weight float64
}

// RiskScore computes the weighted risk score for in, returning the clamped
// [0,1] score and the list of signals that fired (spec §4.K step 2).
func RiskScore(in RiskInput) (float64, []RiskReason) {
	var reasons []RiskReason
	add := func(name string, w float64) {
		reasons = append(reasons, RiskReason{Reason: name, Weight: w})
	}

	switch in.Operation {
	case OpDelete:
		add("delete_operation", riskDelete)
	case OpWrite, OpEdit:
		add("write_operation", riskWriteOrEdit)
	}
	if in.ModifiesTests {
		add("modifies_tests", riskModifiesTests)
	}
	if in.RequiresBash {
		add("requires_bash", riskBash)
	}
	if in.RequiresNetwork {
		add("requires_network", riskNetwork)
	}
	if containsDestructive(in.Command) {
		add("destructive_command", riskDestructiveCmd)
	}
	if in.PayloadBytes > largePayloadBytes {
		add("large_payload", riskLargePayload)
	}
	if in.OutsideProject {
		add("outside_project", riskOutsideProject)
	}
	if isDotfile(in.FilePath) {
		add("dotfile_path", riskDotfile)
	}
	if isDependencyManifest(in.FilePath) {
		add("dependency_manifest", riskDependencyOrBuild)
	}
	if isPermissionsConfig(in.FilePath) {
		add("permissions_config", riskPermissionsConfig)
	}

	var sum float64
	for _, r := range reasons {
		sum += r.Weight
	}
	if sum > 1 {
		sum = 1
	}
	return sum, reasons
}

func containsDestructive(cmd string) bool {
	if cmd == "" {
		return false
	}
	lower := strings.ToLower(cmd)
	for _, s := range destructiveSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func isDotfile(p string) bool {
	if p == "" {
		return false
	}
	return strings.HasPrefix(path.Base(p), ".")
}

func isDependencyManifest(p string) bool {
	if p == "" {
		return false
	}
	base := strings.ToLower(path.Base(p))
	for _, m := range dependencyManifests {
		if base == m {
			return true
		}
	}
	return false
}

func isPermissionsConfig(p string) bool {
	if p == "" {
		return false
	}
	lower := strings.ToLower(p)
	return strings.Contains(lower, "permissions") && (strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".json"))
}
