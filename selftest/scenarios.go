// Package selftest runs a fixed battery of scenarios against a real
// keychain file supplied at the CLI, exercising the same unlock and
// enumeration paths the interactive commands use, and renders the result
// as a report: a named result per scenario, a summary, and a JSON/HTML
// report.
package selftest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"keychainkit/export"
	"keychainkit/keychain"
)

// Result is the outcome of a single scenario.
type Result struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Options configures a run: the fixture file to open, the password to try
// unlocking it with, and an explicit wrong password for the wrong-password
// scenario (derived from password when not set).
type Options struct {
	FixturePath   string
	Password      string
	WrongPassword string
	ExportDir     string
}

// Summary aggregates a run's results.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	PassRate float64       `json:"pass_rate"`
	Duration time.Duration `json:"duration_ns"`
}

// Suite runs every scenario in order and collects results.
type Suite struct {
	Options   Options
	Results   []Result
	StartTime time.Time
	EndTime   time.Time
}

// NewSuite creates a suite for the given options.
func NewSuite(opts Options) *Suite {
	if opts.WrongPassword == "" {
		opts.WrongPassword = opts.Password + "-wrong"
	}
	return &Suite{Options: opts}
}

// RunAll runs every scenario and records its result, continuing past
// individual failures so one broken scenario never hides the rest.
func (s *Suite) RunAll() {
	s.StartTime = time.Now()
	scenarios := []func(Options) Result{
		scenarioSignatureRejection,
		scenarioHashExtractionWhileLocked,
		scenarioWrongPassword,
		scenarioRightPassword,
		scenarioMixedEncodings,
		scenarioPrivateKeyUnlockAndExport,
	}
	for _, fn := range scenarios {
		start := time.Now()
		r := fn(s.Options)
		r.Duration = time.Since(start)
		s.Results = append(s.Results, r)
	}
	s.EndTime = time.Now()
}

// GetSummary aggregates the recorded results.
func (s *Suite) GetSummary() Summary {
	sum := Summary{Total: len(s.Results), Duration: s.EndTime.Sub(s.StartTime)}
	for _, r := range s.Results {
		if r.Passed {
			sum.Passed++
		} else {
			sum.Failed++
		}
	}
	if sum.Total > 0 {
		sum.PassRate = float64(sum.Passed) / float64(sum.Total) * 100
	}
	return sum
}

func pass(name, detail string) Result  { return Result{Name: name, Passed: true, Detail: detail} }
func fail(name, detail string, err error) Result {
	r := Result{Name: name, Passed: false, Detail: detail}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func readFixture(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// scenarioSignatureRejection corrupts the file's magic bytes and confirms
// Open tolerates it - parsing continues, the handle simply opens locked,
// rather than returning an error.
func scenarioSignatureRejection(opts Options) Result {
	const name = "signature rejection"
	buf, err := readFixture(opts.FixturePath)
	if err != nil {
		return fail(name, "reading fixture", err)
	}
	corrupted := append([]byte{}, buf...)
	for i := 0; i < len(corrupted) && i < 4; i++ {
		corrupted[i] ^= 0xFF
	}
	kc, err := keychain.Open(corrupted)
	if err != nil {
		return fail(name, "Open returned an error on a bad signature instead of opening locked", err)
	}
	if !kc.Locked() {
		return fail(name, "a file with a corrupted signature unexpectedly unlocked", nil)
	}
	return pass(name, "bad signature tolerated, handle opened locked")
}

// scenarioHashExtractionWhileLocked confirms the crack-ready hash can be
// pulled without any credential at all.
func scenarioHashExtractionWhileLocked(opts Options) Result {
	const name = "hash extraction while locked"
	buf, err := readFixture(opts.FixturePath)
	if err != nil {
		return fail(name, "reading fixture", err)
	}
	kc, err := keychain.Open(buf)
	if err != nil {
		return fail(name, "Open failed", err)
	}
	hash, err := kc.DumpKeychainPasswordHash()
	if err != nil {
		return fail(name, "hash extraction failed on a locked handle", err)
	}
	if hash == "" {
		return fail(name, "hash extraction returned an empty string", nil)
	}
	return pass(name, fmt.Sprintf("extracted %s", hash))
}

// scenarioWrongPassword confirms a wrong password leaves the handle locked
// rather than erroring or silently unlocking.
func scenarioWrongPassword(opts Options) Result {
	const name = "wrong password"
	buf, err := readFixture(opts.FixturePath)
	if err != nil {
		return fail(name, "reading fixture", err)
	}
	kc, err := keychain.Open(buf, keychain.WithPassword(opts.WrongPassword))
	if err != nil {
		return fail(name, "Open failed", err)
	}
	if !kc.Locked() {
		return fail(name, "handle unlocked under a wrong password", nil)
	}
	return pass(name, "wrong password left the handle locked")
}

// scenarioRightPassword confirms the supplied password unlocks the handle.
func scenarioRightPassword(opts Options) Result {
	const name = "right password"
	buf, err := readFixture(opts.FixturePath)
	if err != nil {
		return fail(name, "reading fixture", err)
	}
	kc, err := keychain.Open(buf, keychain.WithPassword(opts.Password))
	if err != nil {
		return fail(name, "Open failed", err)
	}
	if kc.Locked() {
		return fail(name, "handle stayed locked under the correct password", nil)
	}
	return pass(name, "correct password unlocked the handle")
}

// scenarioMixedEncodings dumps the generic and internet password tables
// (AppleShare passwords are not checked) and confirms each
// secret decoded - whether as UTF-8 or the Latin-1 fallback - without
// leaving any item locked, surfacing which items needed the fallback.
func scenarioMixedEncodings(opts Options) Result {
	const name = "mixed encodings"
	buf, err := readFixture(opts.FixturePath)
	if err != nil {
		return fail(name, "reading fixture", err)
	}
	kc, err := keychain.Open(buf, keychain.WithPassword(opts.Password))
	if err != nil {
		return fail(name, "Open failed", err)
	}
	gp, err := kc.DumpGenericPasswords()
	if err != nil {
		return fail(name, "dumping generic passwords", err)
	}
	ip, err := kc.DumpInternetPasswords()
	if err != nil {
		return fail(name, "dumping internet passwords", err)
	}
	latin1 := 0
	locked := 0
	total := 0
	for _, p := range gp {
		total++
		if p.Locked {
			locked++
		} else if p.Encoding == "latin1" {
			latin1++
		}
	}
	for _, p := range ip {
		total++
		if p.Locked {
			locked++
		} else if p.Encoding == "latin1" {
			latin1++
		}
	}
	if total == 0 {
		return fail(name, "no password records found to decode", nil)
	}
	if locked > 0 {
		return fail(name, fmt.Sprintf("%d/%d password records stayed locked under the correct password", locked, total), nil)
	}
	return pass(name, fmt.Sprintf("decoded %d password records (%d via Latin-1 fallback)", total, latin1))
}

// scenarioPrivateKeyUnlockAndExport unlocks, dumps private keys, and
// exports the first unlocked one to opts.ExportDir.
func scenarioPrivateKeyUnlockAndExport(opts Options) Result {
	const name = "private-key unlock+export"
	buf, err := readFixture(opts.FixturePath)
	if err != nil {
		return fail(name, "reading fixture", err)
	}
	kc, err := keychain.Open(buf, keychain.WithPassword(opts.Password))
	if err != nil {
		return fail(name, "Open failed", err)
	}
	if kc.Locked() {
		return fail(name, "handle is locked, cannot exercise private-key export", nil)
	}
	keys, err := kc.DumpPrivateKeys()
	if err != nil {
		return fail(name, "dumping private keys", err)
	}
	if len(keys) == 0 {
		return fail(name, "no private key records found in fixture", nil)
	}
	var exported string
	for _, k := range keys {
		if k.Locked {
			continue
		}
		dir := opts.ExportDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "keychainkit-selftest")
		}
		path, ok, err := export.Write(dir, k)
		if err != nil {
			return fail(name, "exporting private key", err)
		}
		if !ok {
			return fail(name, "private key reported itself non-exportable while unlocked", nil)
		}
		exported = path
		break
	}
	if exported == "" {
		return fail(name, "every private key record stayed locked under the correct password", nil)
	}
	return pass(name, fmt.Sprintf("exported private key to %s", exported))
}
