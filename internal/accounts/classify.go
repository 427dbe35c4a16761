package accounts

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// Markers printed by the creation script
const (
	markerCreateExit = "CREATE_EXIT="
	markerRelocated  = "RELOCATED="
	markerVerify     = "VERIFY="
	markerDuplicate  = "DUPLICATE"
	markerSuccess    = "SUCCESS"
)

// scriptMarkers is what the creation script reported about itself
type scriptMarkers struct {
	createExit   int
	createRan    bool
	relocated    string
	verification Verification
	duplicate    bool
}

func parseMarkers(stdout string) scriptMarkers {
	m := scriptMarkers{verification: VerificationUnknown}

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, markerCreateExit):
			if code, err := strconv.Atoi(strings.TrimPrefix(line, markerCreateExit)); err == nil {
				m.createExit = code
				m.createRan = true
			}
		case strings.HasPrefix(line, markerRelocated):
			m.relocated = strings.TrimPrefix(line, markerRelocated)
		case strings.HasPrefix(line, markerVerify):
			switch Verification(strings.TrimPrefix(line, markerVerify)) {
			case VerificationPresent:
				m.verification = VerificationPresent
			case VerificationAbsent:
				m.verification = VerificationAbsent
			}
		case line == markerDuplicate:
			m.duplicate = true
		}
	}
	return m
}

// Classification is the interpreted outcome of a creation attempt
type Classification struct {
	Succeeded bool
	Kind      Kind
	Ambiguous bool
	Message   string
}

// ClassifyOutcome turns raw creation output into a result. An independent
// verification wins over every text signal; without one, exit status 0 or a
// SUCCESS marker counts as success.
func ClassifyOutcome(stdout, stderr string, exitCode int, verification Verification) Classification {
	markers := parseMarkers(stdout)
	combined := remote.Result{Stdout: stdout, Stderr: stderr}.Combined()

	if markers.duplicate {
		return Classification{Kind: KindDuplicate, Message: combined}
	}

	switch verification {
	case VerificationPresent:
		ambiguous := exitCode != 0 || (markers.createRan && markers.createExit != 0)
		return Classification{Succeeded: true, Ambiguous: ambiguous, Message: combined}
	case VerificationAbsent:
		kind := KindRemote
		if exitCode == -1 {
			kind = KindTransport
		}
		return Classification{Kind: kind, Message: failureMessage(combined, exitCode)}
	}

	if exitCode == 0 || strings.Contains(stdout, markerSuccess) {
		return Classification{Succeeded: true, Ambiguous: exitCode != 0, Message: combined}
	}

	kind := KindRemote
	if exitCode == -1 {
		kind = KindTransport
	}
	return Classification{Kind: kind, Message: failureMessage(combined, exitCode)}
}

func failureMessage(combined string, exitCode int) string {
	if combined != "" {
		return combined
	}
	return "account creation failed with exit status " + strconv.Itoa(exitCode)
}
