package conceptmap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/rs/zerolog"
)

// Fetcher retrieves a ConceptMap from a FHIR server
type Fetcher interface {
	FetchConceptMap(ctx context.Context, url string) (*fhir.ConceptMap, error)
}

// ConceptMapRepository handles loading and storing ConceptMap resources.
// Maps are loaded at startup and only read during conversions.
type ConceptMapRepository struct {
	log       zerolog.Logger
	localPath string
	cache     sync.Map

	mu sync.RWMutex
	// bySource keeps maps per source system in load order
	bySource map[string][]*fhir.ConceptMap
	count    int
}

// NewConceptMapRepository creates a new ConceptMapRepository.
func NewConceptMapRepository(log zerolog.Logger, localPath string) *ConceptMapRepository {
	return &ConceptMapRepository{
		log:       log,
		localPath: localPath,
		bySource:  make(map[string][]*fhir.ConceptMap),
	}
}

// LoadConceptMaps loads all .json ConceptMaps and .csv mapping tables from the local path.
// Files that fail to load are logged and skipped.
func (repo *ConceptMapRepository) LoadConceptMaps() error {
	if repo.localPath == "" {
		return nil
	}

	files, err := os.ReadDir(repo.localPath)
	if err != nil {
		repo.log.Error().Err(err).Msg("Failed to read directory")
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		filePath := filepath.Join(repo.localPath, file.Name())
		var conceptMap *fhir.ConceptMap
		switch strings.ToLower(filepath.Ext(file.Name())) {
		case ".json":
			conceptMap, err = repo.loadConceptMapFile(filePath)
		case ".csv":
			conceptMap, err = loadCSVFile(filePath)
		default:
			continue
		}
		if err != nil {
			repo.log.Error().
				Err(err).
				Str("file", file.Name()).
				Msg("Failed to load ConceptMap file")
			continue
		}

		repo.log.Debug().Str("filePath", filePath).Msg("Loaded ConceptMap file")
		repo.Add(conceptMap)
	}

	repo.log.Info().Int("count", repo.Count()).Msg("Finished loading ConceptMaps from disk")
	return nil
}

// LoadRemote fetches ConceptMaps by URL. Unlike local files, a failing URL is an error.
func (repo *ConceptMapRepository) LoadRemote(ctx context.Context, fetcher Fetcher, urls []string) error {
	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}

		conceptMap, err := fetcher.FetchConceptMap(ctx, url)
		if err != nil {
			return fmt.Errorf("failed to fetch ConceptMap %s: %w", url, err)
		}

		repo.log.Debug().Str("url", url).Msg("Loaded remote ConceptMap")
		repo.Add(conceptMap)
	}
	return nil
}

// loadConceptMapFile loads a ConceptMap from a file.
func (repo *ConceptMapRepository) loadConceptMapFile(filePath string) (*fhir.ConceptMap, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ConceptMap file: %w", err)
	}

	var conceptMap fhir.ConceptMap
	if err := json.Unmarshal(data, &conceptMap); err != nil {
		return nil, fmt.Errorf("failed to parse ConceptMap: %w", err)
	}
	if conceptMap.ResourceType != "ConceptMap" {
		return nil, fmt.Errorf("expected resourceType ConceptMap, got %q", conceptMap.ResourceType)
	}

	return &conceptMap, nil
}

// Add registers a ConceptMap by id, url and the source system of each group.
// A map whose url or id is already loaded is skipped; the first one wins.
func (repo *ConceptMapRepository) Add(conceptMap *fhir.ConceptMap) {
	for _, key := range []*string{conceptMap.Url, conceptMap.Id} {
		if key == nil || *key == "" {
			continue
		}
		if _, err := repo.GetConceptMap(*key); err == nil {
			repo.log.Warn().Str("key", *key).Msg("ConceptMap already loaded, skipping")
			return
		}
	}

	if conceptMap.Id != nil {
		repo.cache.Store(*conceptMap.Id, conceptMap)
	} else {
		repo.log.Warn().Msg("ConceptMap has no ID")
	}
	if conceptMap.Url != nil {
		repo.cache.Store(*conceptMap.Url, conceptMap)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()

	seen := make(map[string]bool)
	for _, group := range conceptMap.Group {
		source := ""
		if group.Source != nil {
			source = *group.Source
		}
		if seen[source] {
			continue
		}
		seen[source] = true
		repo.bySource[source] = append(repo.bySource[source], conceptMap)
	}
	repo.count++
}

// GetConceptMap retrieves a ConceptMap by ID or URL.
func (repo *ConceptMapRepository) GetConceptMap(key string) (*fhir.ConceptMap, error) {
	if cached, ok := repo.cache.Load(key); ok {
		return cached.(*fhir.ConceptMap), nil
	}
	return nil, fmt.Errorf("ConceptMap %s not found", key)
}

// GetConceptMapsBySource returns the maps with a group for the given source system
func (repo *ConceptMapRepository) GetConceptMapsBySource(system string) []*fhir.ConceptMap {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	return repo.bySource[system]
}

func (repo *ConceptMapRepository) Count() int {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	return repo.count
}
