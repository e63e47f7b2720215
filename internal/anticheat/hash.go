package anticheat

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// FNV-1a 64-bit parameters.
const (
	fnvOffset64 uint64 = 14695981039346656037
	fnvPrime64  uint64 = 1099511628211
)

// Hasher produces the advisory integrity hash carried on every report. It is
// deliberately NOT cryptographic: the hash raises the effort bar for casual
// report tampering and nothing more. Anyone who reads this source can forge
// one, which is fine; the backend treats the whole report as untrusted input
// regardless.
//
// The hash folds in a coarse environment signal fixed at construction, so
// two identical reports produced on different hosts hash differently.
type Hasher struct {
	envSignal uint64
}

// NewHasher creates a hasher bound to the given environment signal.
func NewHasher(signal string) *Hasher {
	return &Hasher{envSignal: fold(fnvOffset64, signal)}
}

// DefaultSignal derives a coarse signal from the local environment. It is
// stable for the lifetime of a host, not secret, and intentionally lossy.
func DefaultSignal() string {
	host, _ := os.Hostname()
	return strings.Join([]string{
		strconv.Itoa(len(host)),
		runtime.GOOS,
		runtime.GOARCH,
	}, "/")
}

// Sum joins the fields with "|" in the order given, folds them through
// FNV-1a together with the environment signal, and renders the digest in
// base 36. Field order matters; callers must serialize deterministically.
func (h *Hasher) Sum(fields ...string) string {
	d := fold(fnvOffset64, strings.Join(fields, "|"))
	d ^= h.envSignal
	d *= fnvPrime64
	return strconv.FormatUint(d, 36)
}

// ReportHash computes the integrity hash over a report's adjudication-
// relevant fields. Flags contribute their types in raise order; Detail maps
// are excluded so float formatting can evolve without breaking hashes.
func (h *Hasher) ReportHash(r *Report) string {
	flagTypes := make([]string, len(r.Flags))
	for i, f := range r.Flags {
		flagTypes[i] = string(f.Type)
	}
	return h.Sum(
		r.ID,
		r.GameID,
		strconv.FormatInt(r.StartTime, 10),
		strconv.FormatInt(r.EndTime, 10),
		strconv.FormatInt(r.DurationMs, 10),
		strconv.FormatFloat(r.FinalScore, 'f', -1, 64),
		strconv.Itoa(r.ActionCount),
		strings.Join(flagTypes, ","),
	)
}

func fold(seed uint64, s string) uint64 {
	d := seed
	for i := 0; i < len(s); i++ {
		d ^= uint64(s[i])
		d *= fnvPrime64
	}
	return d
}
