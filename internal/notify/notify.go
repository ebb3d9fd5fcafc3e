package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/linkstore"
	"github.com/shaibs3/LinkWatch/internal/scanner"
)

// ThresholdHook returns a completion hook that records scans whose broken
// count meets the configured threshold. External alerting (mail, chat, ...)
// taps LastTriggered or wraps this hook; the engine itself only decides
// whether the scan is worth announcing.
func ThresholdHook(threshold int, logger *zap.Logger, sink func(linkstore.Scan)) scanner.CompletionHook {
	log := logger.Named("notify")
	return func(scan linkstore.Scan) {
		if scan.TotalBroken < threshold {
			log.Debug("scan below notification threshold",
				zap.String("scan_id", scan.ID),
				zap.Int("broken", scan.TotalBroken),
				zap.Int("threshold", threshold))
			return
		}
		log.Info("broken links found",
			zap.String("scan_id", scan.ID),
			zap.Int("broken", scan.TotalBroken),
			zap.Int("checked", scan.TotalChecked))
		if sink != nil {
			sink(scan)
		}
	}
}

// Recorder keeps the most recent scan that crossed the threshold. Handy as a
// sink for ThresholdHook in tests and for surfacing on the API.
type Recorder struct {
	mu   sync.Mutex
	last *linkstore.Scan
}

func (r *Recorder) Record(scan linkstore.Scan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := scan
	r.last = &cp
}

// Last returns the most recently recorded scan, or nil.
func (r *Recorder) Last() *linkstore.Scan {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	return &cp
}
