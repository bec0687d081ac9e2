// Package seed imports tracked items from a YAML file.
//
// Example file:
//
//	items:
//	  - name: GPU
//	    url: https://shop.example/gpu
//	    selector: .price
//	  - url: https://shop.example/ssd
//	    selector: "#cost"
//
// Imported rows have no value yet; the first refresh fills them in.
package seed

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/tinytelemetry/valuewatch/internal/model"
	"gopkg.in/yaml.v3"
)

// File is the root of an import file.
type File struct {
	Items []Entry `yaml:"items"`
}

// Entry is one item to track.
type Entry struct {
	// Name defaults to the URL when empty.
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Selector string `yaml:"selector"`
}

// ImportItemsFile reads path and returns new items with fresh IDs.
func ImportItemsFile(path string) ([]model.TrackedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an import document.
func Parse(data []byte) ([]model.TrackedItem, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: parse YAML: %w", err)
	}

	var errs []error
	items := make([]model.TrackedItem, 0, len(f.Items))
	for i, e := range f.Items {
		if err := e.validate(); err != nil {
			errs = append(errs, fmt.Errorf("items[%d]: %w", i, err))
			continue
		}
		link := strings.TrimSpace(e.URL)
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = link
		}
		items = append(items, model.TrackedItem{
			ID:            model.NewItemID(),
			Name:          name,
			URL:           link,
			Selector:      strings.TrimSpace(e.Selector),
			PreviousValue: model.NoPreviousValue,
		})
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("seed: %w", errors.Join(errs...))
	}
	return items, nil
}

func (e Entry) validate() error {
	raw := strings.TrimSpace(e.URL)
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if strings.TrimSpace(e.Selector) == "" {
		return errors.New("selector is required")
	}
	return nil
}
