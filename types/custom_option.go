package types

import (
	"fmt"
	"strings"
)

type DictionaryItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type DictionaryItems []DictionaryItem

// Deduplicate keeps only the last value of every key; the order of the
// kept items is the order of their last occurrence.
func (s DictionaryItems) Deduplicate() DictionaryItems {
	if s == nil {
		return nil
	}
	lastIdx := map[string]int{}
	for idx, item := range s {
		lastIdx[item.Key] = idx
	}
	result := make(DictionaryItems, 0, len(lastIdx))
	for idx, item := range s {
		if lastIdx[item.Key] != idx {
			continue
		}
		result = append(result, item)
	}
	return result
}

// DictionaryItemFromString parses "key=value".
func DictionaryItemFromString(s string) (DictionaryItem, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return DictionaryItem{}, fmt.Errorf("expected 'key=value', got '%s'", s)
	}
	return DictionaryItem{Key: key, Value: value}, nil
}
