package matcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"landreg/internal/model"
	"landreg/internal/registry"
)

const (
	DefaultRetries    = 2
	DefaultDelay      = 500 * time.Millisecond
	DefaultRetryPause = 1500 * time.Millisecond
)

// RegistryClient is the lookup the matcher drives; *registry.Client satisfies it.
type RegistryClient interface {
	Lookup(ctx context.Context, postcode, doorNumber string) ([]model.LookupResult, error)
}

// Options controls retries and pacing
type Options struct {
	Retries    int           // extra attempts after the first failure
	Delay      time.Duration // pause after every property
	RetryPause time.Duration // pause after a failed attempt
	Sleep      func(time.Duration)

	// OnRecord, when set, is called after each property with its 1-based position.
	OnRecord func(n, total int, rec model.MatchedRecord)
}

// DefaultOptions returns 2 retries, 0.5s delay and 1.5s retry pause.
func DefaultOptions() Options {
	return Options{
		Retries:    DefaultRetries,
		Delay:      DefaultDelay,
		RetryPause: DefaultRetryPause,
		Sleep:      time.Sleep,
	}
}

// Matcher looks up each property in turn, one request at a time.
type Matcher struct {
	client RegistryClient
	opts   Options
	logger zerolog.Logger
	money  *message.Printer
}

// New creates a matcher around client
func New(client RegistryClient, opts Options, logger zerolog.Logger) *Matcher {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Matcher{
		client: client,
		opts:   opts,
		logger: logger,
		money:  message.NewPrinter(language.BritishEnglish),
	}
}

// MatchAll returns exactly one record per input, in input order. When ctx is
// cancelled it stops before the next property and returns ctx.Err() with the
// records completed so far; the interrupted property is not recorded.
func (m *Matcher) MatchAll(ctx context.Context, inputs []model.PropertyInput) ([]model.MatchedRecord, error) {
	records := make([]model.MatchedRecord, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		rec := m.Match(ctx, in)
		if err := ctx.Err(); err != nil {
			return records, err
		}
		records = append(records, rec)

		m.logRecord(i+1, len(inputs), rec)
		if m.opts.OnRecord != nil {
			m.opts.OnRecord(i+1, len(inputs), rec)
		}
		m.opts.Sleep(m.opts.Delay)
	}
	return records, nil
}

// Match looks up one property, retrying failed calls.
func (m *Matcher) Match(ctx context.Context, in model.PropertyInput) model.MatchedRecord {
	door := strings.TrimSpace(in.DoorNumber)
	postcode := strings.TrimSpace(in.Postcode)

	rec := model.MatchedRecord{
		PropertyID:      in.PropertyID,
		InputDoorNumber: door,
		InputPostcode:   postcode,
	}

	results, err := m.lookupWithRetry(ctx, postcode, door)
	switch {
	case err != nil:
		rec.Status = model.StatusError
		rec.Error = err.Error()
	case len(results) == 0:
		rec.Status = model.StatusNoMatch
	default:
		latest := results[0]
		if latest.Amount != "" {
			v, perr := strconv.ParseFloat(strings.TrimSpace(latest.Amount), 64)
			if perr != nil {
				rec.Status = model.StatusError
				rec.Error = fmt.Sprintf("invalid amount %q: %v", latest.Amount, perr)
				return rec
			}
			rec.SoldValue = &v
		}
		rec.MatchedAddress = registry.FormatAddress(latest)
		rec.SoldDate = latest.Date
		rec.Category = latest.Category
		rec.Status = model.StatusMatched
	}
	return rec
}

// lookupWithRetry makes up to Retries+1 attempts and returns the last error
// when all of them fail. A cancelled ctx ends the attempts with ctx.Err().
func (m *Matcher) lookupWithRetry(ctx context.Context, postcode, door string) ([]model.LookupResult, error) {
	var lastErr error
	attempts := m.opts.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := m.client.Lookup(ctx, postcode, door)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		m.logger.Warn().
			Err(err).
			Str("door_number", door).
			Str("postcode", postcode).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("registry lookup failed")

		if attempt < attempts {
			m.opts.Sleep(m.opts.RetryPause)
		}
	}
	return nil, lastErr
}

func (m *Matcher) logRecord(n, total int, rec model.MatchedRecord) {
	var evt *zerolog.Event
	if rec.Status == model.StatusError {
		evt = m.logger.Error().Str("error", rec.Error)
	} else {
		evt = m.logger.Info()
	}
	evt = evt.
		Int("row", n).
		Int("total", total).
		Str("property_id", rec.PropertyID).
		Str("status", string(rec.Status))
	if rec.Status == model.StatusMatched {
		evt = evt.Str("address", rec.MatchedAddress).Str("sold_date", rec.SoldDate)
		if rec.SoldValue != nil {
			evt = evt.Str("sold_value", m.money.Sprintf("£%d", int64(*rec.SoldValue)))
		}
	}
	evt.Msg("property processed")
}
