// Package diag implements the diagnostics list the code generator appends
// to as it runs: ZIL#### and MDL#### coded warnings, and the fatal errors
// that abort an in-flight compilation.
package diag

import "fmt"

// Severity distinguishes a recoverable warning from a fatal error.
type Severity uint8

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Diagnostic is one recorded warning or error.
type Diagnostic struct {
	Code     string // e.g. "ZIL0204", "MDL0428"
	Severity Severity
	Routine  string // current routine name, empty at program scope
	Message  string
}

func (d Diagnostic) String() string {
	if d.Routine != "" {
		return fmt.Sprintf("%s [%s] (in %s): %s", d.Severity, d.Code, d.Routine, d.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", d.Severity, d.Code, d.Message)
}

// Suppressor decides whether a diagnostic code should be dropped. It is
// implemented by *config.Config; kept as an interface here so diag doesn't
// import config.
type Suppressor interface {
	IsSuppressed(code string) bool
}

// Fatal is returned by the driver when a diagnostic aborts the compilation,
// either because it was an Error-severity diagnostic or because
// warn-as-error promoted the first Warning.
type Fatal struct {
	Diagnostic Diagnostic
}

func (f *Fatal) Error() string { return f.Diagnostic.String() }

// Diagnostics accumulates the warnings and errors raised by a single
// compilation. It is not safe for concurrent use; the code generator runs
// strictly single-threaded.
type Diagnostics struct {
	items      []Diagnostic
	suppressor Suppressor
	warnAsErr  bool
	routine    string // current routine context, set by SetRoutine
}

// New returns a ready-to-use Diagnostics list. suppressor may be nil, in
// which case nothing is suppressed.
func New(suppressor Suppressor, warnAsError bool) *Diagnostics {
	return &Diagnostics{suppressor: suppressor, warnAsErr: warnAsError}
}

// SetRoutine sets the routine name attached to subsequently raised
// diagnostics, and is reset to "" between routines by the routine compiler.
func (d *Diagnostics) SetRoutine(name string) { d.routine = name }

// Warnf records a warning-severity diagnostic, unless suppressed by the
// configured policy. If warn-as-error is active and this is the first
// diagnostic raised overall, it is promoted and returned as a *Fatal error
// instead of being recorded as a warning.
func (d *Diagnostics) Warnf(code, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	diagnostic := Diagnostic{Code: code, Severity: Warning, Routine: d.routine, Message: msg}

	if d.suppressor != nil && d.suppressor.IsSuppressed(code) {
		return nil
	}
	if d.warnAsErr && len(d.items) == 0 {
		diagnostic.Severity = Error
		d.items = append(d.items, diagnostic)
		return &Fatal{Diagnostic: diagnostic}
	}
	d.items = append(d.items, diagnostic)
	return nil
}

// Errorf records an error-severity diagnostic and returns it as a *Fatal,
// which the driver uses to abort the in-flight compilation and discard the
// routine being emitted: no instruction emits partial bytes on an error
// path.
func (d *Diagnostics) Errorf(code, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	diagnostic := Diagnostic{Code: code, Severity: Error, Routine: d.routine, Message: msg}
	d.items = append(d.items, diagnostic)
	return &Fatal{Diagnostic: diagnostic}
}

// List returns the accumulated diagnostics in raise order.
func (d *Diagnostics) List() []Diagnostic { return d.items }

// HasErrors reports whether any Error-severity diagnostic was recorded.
func (d *Diagnostics) HasErrors() bool {
	for _, it := range d.items {
		if it.Severity == Error {
			return true
		}
	}
	return false
}
