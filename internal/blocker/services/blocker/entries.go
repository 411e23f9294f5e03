package blocker

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/haukened/dontvisit/internal/blocker/common/urlutil"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// normalizeSite validates raw and turns it into an entry under the current
// case-sensitivity setting.
func (s *Service) normalizeSite(raw string) (domain.BlockEntry, error) {
	site := strings.TrimSpace(raw)
	if !urlutil.ValidSite(site) {
		return "", fmt.Errorf("%w: invalid site %q", domain.ErrMalformedInput, raw)
	}
	settings, err := s.store.Settings()
	if err != nil {
		return "", err
	}
	return domain.NewBlockEntry(site, settings.CaseSensitive)
}

// AddEntry validates and appends site to the list.
func (s *Service) AddEntry(site string) (domain.BlockList, error) {
	e, err := s.normalizeSite(site)
	if err != nil {
		return nil, err
	}
	list, err := s.store.UpdateBlockList(func(l domain.BlockList) (domain.BlockList, error) {
		return l.With(e)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SetBlockListSize(len(list))
	s.logger.Info(map[string]any{"site": e.String()}, "site added to block list")
	return list, nil
}

// AddEntryFromURL blocks the hostname of rawURL ("block current site").
func (s *Service) AddEntryFromURL(rawURL string) (domain.BlockList, error) {
	host, err := urlutil.Hostname(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	if host == "" {
		return nil, fmt.Errorf("%w: %q has no host", domain.ErrMalformedInput, rawURL)
	}
	return s.AddEntry(host)
}

// RemoveEntry removes site. The normalized form is tried first, then the
// trimmed input as given, so entries stored under another case mode can
// still be removed.
func (s *Service) RemoveEntry(site string) (domain.BlockList, error) {
	trimmed := strings.TrimSpace(site)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: entry must not be empty", domain.ErrMalformedInput)
	}
	settings, err := s.store.Settings()
	if err != nil {
		return nil, err
	}
	normalized, _ := domain.NewBlockEntry(trimmed, settings.CaseSensitive)
	list, err := s.store.UpdateBlockList(func(l domain.BlockList) (domain.BlockList, error) {
		if l.Contains(normalized) {
			return l.Without(normalized)
		}
		return l.Without(domain.BlockEntry(trimmed))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SetBlockListSize(len(list))
	s.logger.Info(map[string]any{"site": trimmed}, "site removed from block list")
	return list, nil
}

// ClearEntries empties the list.
func (s *Service) ClearEntries() error {
	_, err := s.store.UpdateBlockList(func(domain.BlockList) (domain.BlockList, error) {
		return domain.BlockList{}, nil
	})
	if err != nil {
		return err
	}
	s.metrics.SetBlockListSize(0)
	s.logger.Info(nil, "block list cleared")
	return nil
}

// Entries returns the current list.
func (s *Service) Entries() (domain.BlockList, error) {
	return s.store.BlockList()
}

// ImportResult summarizes an import.
type ImportResult struct {
	Added   []string
	Skipped int
	// Rejected aggregates invalid entries; nil when all were valid.
	Rejected error
}

// ImportEntries merges sites into the list in one store transaction.
// Invalid entries are rejected, entries already present are skipped.
func (s *Service) ImportEntries(sites []string) (ImportResult, error) {
	settings, err := s.store.Settings()
	if err != nil {
		return ImportResult{}, err
	}
	var res ImportResult
	var rejected *multierror.Error
	valid := make([]domain.BlockEntry, 0, len(sites))
	for _, raw := range sites {
		site := strings.TrimSpace(raw)
		if !urlutil.ValidSite(site) {
			rejected = multierror.Append(rejected, fmt.Errorf("%w: invalid site %q", domain.ErrMalformedInput, raw))
			continue
		}
		e, err := domain.NewBlockEntry(site, settings.CaseSensitive)
		if err != nil {
			rejected = multierror.Append(rejected, err)
			continue
		}
		valid = append(valid, e)
	}

	list, err := s.store.UpdateBlockList(func(l domain.BlockList) (domain.BlockList, error) {
		res.Added = res.Added[:0]
		res.Skipped = 0
		for _, e := range valid {
			next, err := l.With(e)
			if err != nil {
				res.Skipped++
				continue
			}
			l = next
			res.Added = append(res.Added, e.String())
		}
		return l, nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	res.Rejected = rejected.ErrorOrNil()
	s.metrics.SetBlockListSize(len(list))
	s.logger.Info(map[string]any{"added": len(res.Added), "skipped": res.Skipped, "rejected": len(sites) - len(valid)}, "block list imported")
	return res, nil
}
