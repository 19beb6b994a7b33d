package conceptmap

import (
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/rs/zerolog"
)

// wildcard is the element code that matches any source code
const wildcard = "*"

// ConceptMapService translates resolved codes with the loaded ConceptMaps
type ConceptMapService struct {
	repo *ConceptMapRepository
	log  zerolog.Logger
}

// NewConceptMapService creates a new ConceptMapService.
func NewConceptMapService(repo *ConceptMapRepository, log zerolog.Logger) *ConceptMapService {
	return &ConceptMapService{
		repo: repo,
		log:  log,
	}
}

// Translate looks up system|code in every map with a group for system, in
// load order. A direct mapping in any map wins over a wildcard mapping.
func (s *ConceptMapService) Translate(system, code string) (*eka.Code, bool) {
	if code == "" {
		return nil, false
	}

	maps := s.repo.GetConceptMapsBySource(system)
	for _, conceptMap := range maps {
		if result := findMapping(conceptMap, system, code); result != nil {
			return result, true
		}
	}
	for _, conceptMap := range maps {
		if result := findMapping(conceptMap, system, wildcard); result != nil {
			return result, true
		}
	}

	s.log.Trace().Str("system", system).Str("code", code).Msg("No translation found")
	return nil, false
}

func findMapping(conceptMap *fhir.ConceptMap, system, sourceCode string) *eka.Code {
	for _, group := range conceptMap.Group {
		if getDisplayValue(group.Source) != system {
			continue
		}
		for _, element := range group.Element {
			if element.Code == nil || *element.Code != sourceCode {
				continue
			}
			for _, target := range element.Target {
				if target.Code == nil || isUnmatched(target.Equivalence) {
					continue
				}
				return &eka.Code{
					System:  getDisplayValue(group.Target),
					Code:    *target.Code,
					Display: getDisplayValue(target.Display),
				}
			}
		}
	}
	return nil
}

// isUnmatched reports targets that state there is no mapping
func isUnmatched(equivalence *string) bool {
	return equivalence != nil && (*equivalence == "unmatched" || *equivalence == "disjoint")
}

// getDisplayValue returns the value if it is not nil, otherwise returns an empty string
func getDisplayValue(display *string) string {
	if display != nil {
		return *display
	}
	return ""
}
