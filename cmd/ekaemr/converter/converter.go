// Package converter runs the FHIR Bundle to EKA EMR conversion pipeline:
// validate, index, map every entry, then aggregate the fragments into one record.
package converter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/bundle"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/coding"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/mapper"
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// recordNamespace scopes the name-based record ids
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://santeon.nl/ekaemr/record"))

// Options are the per-call conversion options
type Options struct {
	// PrioritySystems overrides the resolver's system priority for this call
	PrioritySystems []string
	Lenient         bool
	// Workers > 1 maps entries concurrently; the result is the same as with one worker
	Workers int
}

// Result is a converted record with the errors lenient mode reported on the way
type Result struct {
	Record      *eka.Record    `json:"record"`
	Diagnostics []*issue.Error `json:"diagnostics"`
}

type ConverterService struct {
	log      zerolog.Logger
	registry *mapper.Registry
	resolver *coding.Resolver
	cache    *ResultCache
	now      func() time.Time
}

// ConverterConfig holds everything needed to create a converter
type ConverterConfig struct {
	Log      zerolog.Logger
	Registry *mapper.Registry
	Resolver *coding.Resolver
	// Cache is optional
	Cache *ResultCache
	// Clock defaults to time.Now
	Clock func() time.Time
}

func NewConverterService(config ConverterConfig) (*ConverterService, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if config.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &ConverterService{
		log:      config.Log.With().Str("component", "converter").Logger(),
		registry: config.Registry,
		resolver: config.Resolver,
		cache:    config.Cache,
		now:      config.Clock,
	}, nil
}

// Convert turns a FHIR R4 Bundle into an EKA record. In strict mode the first
// error aborts the conversion. In lenient mode recoverable errors are returned
// in Result.Diagnostics; schema errors and NoCodingFound still abort.
// Returned errors are *issue.Error values.
func (s *ConverterService) Convert(data []byte, opts Options) (*Result, error) {
	start := time.Now()
	mode := issue.ModeOf(opts.Lenient)
	resolver := s.resolver.WithPrioritySystems(opts.PrioritySystems)
	recordID := RecordID(data, mode, resolver.PrioritySystems(), resolver.AnySystem())

	if cached, ok := s.cache.Get(recordID); ok {
		s.log.Debug().Str("recordId", recordID).Msg("Returning cached conversion")
		return cached, nil
	}

	var diagnostics []*issue.Error

	vb, reported, err := bundle.Validate(data, s.registry.Supports, mode)
	if err != nil {
		return nil, s.failed(err, mode)
	}
	diagnostics = append(diagnostics, reported...)

	idx, reported, err := bundle.NewIndex(vb, mode)
	if err != nil {
		return nil, s.failed(err, mode)
	}
	diagnostics = append(diagnostics, reported...)

	fragments, reported, err := s.mapEntries(vb.Entries, resolver, mode, opts.Workers)
	if err != nil {
		return nil, s.failed(err, mode)
	}
	diagnostics = append(diagnostics, reported...)

	meta := Meta{
		RecordID:    recordID,
		ConvertedAt: s.now().UTC().Format(time.RFC3339),
		Bundle: eka.BundleInfo{
			ID:         vb.ID,
			Type:       vb.Type,
			Timestamp:  vb.Timestamp,
			EntryCount: vb.EntryCount(),
		},
	}
	record, reported, err := Aggregate(fragments, idx, s.registry, resolver, meta, mode)
	if err != nil {
		return nil, s.failed(err, mode)
	}
	diagnostics = append(diagnostics, reported...)

	if diagnostics == nil {
		diagnostics = []*issue.Error{}
	}
	result := &Result{Record: record, Diagnostics: diagnostics}
	s.cache.Store(recordID, result)

	s.log.Info().
		Str("recordId", recordID).
		Str("mode", mode.String()).
		Int("entries", vb.EntryCount()).
		Int("mapped", len(fragments)).
		Int("diagnostics", len(diagnostics)).
		Dur("took", time.Since(start)).
		Msg("Converted bundle")

	return result, nil
}

func (s *ConverterService) failed(err error, mode issue.Mode) error {
	var ie *issue.Error
	if errors.As(err, &ie) {
		s.log.Warn().
			Str("kind", string(ie.Kind)).
			Int("entry", ie.EntryIndex).
			Str("mode", mode.String()).
			Msg(ie.Detail)
	}
	return err
}

type mapOutcome struct {
	fragment *mapper.Fragment
	err      error
}

// mapEntries maps every supported, non-duplicate entry. Outcomes are kept per
// entry and scanned in entry order, so errors and fragment order do not
// depend on the number of workers.
func (s *ConverterService) mapEntries(entries []*bundle.Entry, resolver *coding.Resolver, mode issue.Mode, workers int) ([]*mapper.Fragment, []*issue.Error, error) {
	outcomes := make([]mapOutcome, len(entries))

	mapOne := func(i int) {
		entry := entries[i]
		if !entry.Supported || entry.Duplicate {
			return
		}
		m, ok := s.registry.Lookup(entry.ResourceType)
		if !ok {
			outcomes[i].err = issue.NewUnsupportedResourceType(entry.Index, entry.ResourceType)
			return
		}
		if m.Map == nil {
			return
		}
		f, err := m.Map(mapper.Input{Entry: entry, Resolver: resolver})
		outcomes[i] = mapOutcome{fragment: f, err: err}
	}

	if workers > 1 && len(entries) > 1 {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range entries {
			i := i
			g.Go(func() error {
				mapOne(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range entries {
			mapOne(i)
			if outcomes[i].err != nil && !recoverable(outcomes[i].err, mode) {
				break
			}
		}
	}

	var (
		fragments []*mapper.Fragment
		reported  []*issue.Error
	)
	for i, o := range outcomes {
		if o.err != nil {
			if !recoverable(o.err, mode) {
				return nil, nil, o.err
			}
			reported = append(reported, o.err.(*issue.Error))
			s.log.Debug().Int("entry", i).Err(o.err).Msg("Skipped entry")
			continue
		}
		if o.fragment != nil {
			fragments = append(fragments, o.fragment)
		}
	}
	return fragments, reported, nil
}

// recoverable reports whether lenient mode may report err and carry on
func recoverable(err error, mode issue.Mode) bool {
	if mode != issue.Lenient {
		return false
	}
	ie, ok := err.(*issue.Error)
	return ok && ie.Recoverable()
}

// RecordID derives the record id from the input bytes and the options that
// change the output, so converting the same input twice yields the same id.
func RecordID(data []byte, mode issue.Mode, prioritySystems []string, anySystem bool) string {
	options := fmt.Sprintf("mode=%s;systems=%s;anySystem=%t", mode, strings.Join(prioritySystems, ","), anySystem)
	name := make([]byte, 0, len(data)+1+len(options))
	name = append(name, data...)
	name = append(name, 0)
	name = append(name, options...)
	return uuid.NewSHA1(recordNamespace, name).String()
}
