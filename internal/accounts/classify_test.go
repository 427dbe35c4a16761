package accounts

import "testing"

func TestClassifyOutcome(t *testing.T) {
	cases := []struct {
		name         string
		stdout       string
		stderr       string
		exitCode     int
		verification Verification
		succeeded    bool
		ambiguous    bool
		kind         Kind
	}{
		{"verified clean", "CREATE_EXIT=0\nVERIFY=present\n", "", 0, VerificationPresent, true, false, KindNone},
		{"verified despite tool failure", "CREATE_EXIT=7\n", "", 0, VerificationPresent, true, true, KindNone},
		{"verified despite exit", "", "", 2, VerificationPresent, true, true, KindNone},
		{"absent despite exit 0", "SUCCESS: x\n", "", 0, VerificationAbsent, false, false, KindRemote},
		{"absent after transport loss", "", "broken pipe", -1, VerificationAbsent, false, false, KindTransport},
		{"duplicate marker wins", "DUPLICATE\n", "", 1, VerificationPresent, false, false, KindDuplicate},
		{"unknown exit 0", "", "", 0, VerificationUnknown, true, false, KindNone},
		{"unknown success marker", "SUCCESS: /tw404/db/master/x\n", "", 5, VerificationUnknown, true, true, KindNone},
		{"unknown failure", "ERROR: nope\n", "", 2, VerificationUnknown, false, false, KindRemote},
		{"unknown transport", "", "timeout", -1, VerificationUnknown, false, false, KindTransport},
	}

	for _, tc := range cases {
		got := ClassifyOutcome(tc.stdout, tc.stderr, tc.exitCode, tc.verification)
		if got.Succeeded != tc.succeeded || got.Ambiguous != tc.ambiguous || got.Kind != tc.kind {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}

func TestClassifyFailureMessageCombinesStreams(t *testing.T) {
	got := ClassifyOutcome("ERROR: disk full\n", "write failed\n", 2, VerificationUnknown)
	if got.Message != "ERROR: disk full\nwrite failed" {
		t.Fatalf("unexpected message %q", got.Message)
	}

	got = ClassifyOutcome("", "", 3, VerificationUnknown)
	if got.Message == "" {
		t.Fatalf("expected a fallback message")
	}
}

func TestParseMarkers(t *testing.T) {
	m := parseMarkers("noise\nCREATE_EXIT=0\nRELOCATED=yes\nVERIFY=present\n")
	if !m.createRan || m.createExit != 0 || m.relocated != "yes" || m.verification != VerificationPresent || m.duplicate {
		t.Fatalf("unexpected markers %+v", m)
	}

	m = parseMarkers("VERIFY=maybe\n")
	if m.verification != VerificationUnknown || m.createRan {
		t.Fatalf("unexpected markers %+v", m)
	}
}
