package media

import (
	"io"
	"time"

	"golang.org/x/time/rate"
)

// Progress reports how many bytes of a transfer have moved. total is -1
// when the size is unknown.
type Progress func(transferred, total int64)

// progressReader wraps a transfer stream and reports progress at most once
// per interval, plus a final report when the stream ends.
type progressReader struct {
	r           io.Reader
	total       int64
	transferred int64
	limiter     *rate.Limiter
	report      Progress
}

func newProgressReader(r io.Reader, total int64, interval time.Duration, report Progress) *progressReader {
	return &progressReader{
		r:       r,
		total:   total,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		report:  report,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.transferred += int64(n)
		if p.report != nil && p.limiter.Allow() {
			p.report(p.transferred, p.total)
		}
	}
	if err == io.EOF && p.report != nil {
		p.report(p.transferred, p.total)
	}
	return n, err
}
