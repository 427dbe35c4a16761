package accounts

import (
	"path"
	"strings"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// creationPlan holds the resolved inputs of the creation transaction
type creationPlan struct {
	masterDir string
	target    string
	legacy    string
	name      string
	password  string
	profile   config.AccountsConfig
}

// script renders the remote creation transaction. Every value that came from
// a caller or the remote resolver is quoted. Dates come from the remote clock.
func (p creationPlan) script() string {
	q := remote.Quote
	var b strings.Builder

	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line("cd " + q(p.masterDir) + " || { echo 'ERROR: master directory unavailable'; exit 3; }")
	line("if [ -f " + q(p.target) + " ]; then")
	line("  echo 'ERROR: account already exists'")
	line("  echo " + markerDuplicate)
	line("  exit 1")
	line("fi")
	line("CREATEDATE=$(date +%Y%m%d)")
	line("TICK=$(( $(date +%Y) + 1 ))")
	line(`CREATETICK=$(date +"${TICK}%m%d")`)
	line("./" + remote.QuoteAll(
		p.profile.CreateTool,
		p.name,
		p.password,
		p.profile.Email,
		p.profile.Birthdate,
		p.profile.Race,
	) + ` "$CREATEDATE" "$CREATETICK" ` + remote.QuoteAll(p.profile.Homeland, p.profile.Gender))
	line("echo " + markerCreateExit + "$?")

	if p.legacy != "" && p.legacy != p.target {
		dst := path.Dir(p.target)
		line("if [ -f " + q(p.legacy) + " ]; then")
		line("  mkdir -p " + q(dst))
		line("  if mv " + q(p.legacy) + " " + q(dst+"/") + " 2>/dev/null; then echo " + markerRelocated + "yes; else echo " + markerRelocated + "no; fi")
		line("else")
		line("  echo " + markerRelocated + "no")
		line("fi")
	} else {
		line("echo " + markerRelocated + "skipped")
	}

	line("if [ -f " + q(p.target) + " ]; then")
	line("  echo " + markerVerify + string(VerificationPresent))
	line("  echo " + q(markerSuccess+": "+path.Join(p.masterDir, p.target)))
	line("  exit 0")
	line("fi")
	line("echo " + markerVerify + string(VerificationAbsent))
	line("echo 'ERROR: account file missing after creation'")
	line("exit 2")

	return b.String()
}
