package loader

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
	"github.com/ResistanceIsUseless/BlockHawk/internal/validation"
)

// LoadProxies loads and validates proxies from a file using default validation
func LoadProxies(filename string) ([]proxy.Proxy, []string, error) {
	return LoadProxiesWithValidator(filename, validation.NewProxyValidator())
}

// LoadProxiesWithValidator loads proxies with a custom validator. Lines that
// fail to parse or validate are skipped and reported as warnings.
func LoadProxiesWithValidator(filename string, validator *validation.ProxyValidator) ([]proxy.Proxy, []string, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, nil, errors.NewFileError(errors.ErrorFileNotFound, "proxy file not found", filename, err)
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, errors.NewFileError(errors.ErrorFileReadFailed, "failed to open proxy file", filename, err)
	}
	defer file.Close()

	var proxies []proxy.Proxy
	var warnings []string
	lineNo := 0
	candidates := 0
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if proxy.IsSkippable(line) {
			continue
		}
		candidates++

		p, err := proxy.Parse(line)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Line %d: %v", lineNo, err))
			continue
		}
		if err := validator.ValidateProxy(p); err != nil {
			warnings = append(warnings, fmt.Sprintf("Line %d: %v", lineNo, err))
			continue
		}

		proxies = append(proxies, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, warnings, errors.NewFileError(errors.ErrorFileReadFailed, "error reading proxy file", filename, err)
	}

	if len(proxies) == 0 {
		if candidates == 0 {
			return nil, warnings, errors.NewFileError(errors.ErrorFileEmpty, "proxy file is empty", filename, nil)
		}
		return nil, warnings, errors.NewFileError(errors.ErrorFileInvalidFormat, "no valid proxies found in file", filename, nil).
			WithDetail("lines_read", lineNo).
			WithDetail("warnings", len(warnings))
	}

	return proxies, warnings, nil
}

// ParseSelection turns an operator selection into sorted, unique 0-based
// indices below total. "all" (or an empty selection) picks everything;
// otherwise the selection is a comma-separated list of 1-based indices and
// inclusive ranges such as "1,3-5,8". Malformed or out-of-range tokens are
// dropped.
func ParseSelection(selection string, total int) []int {
	selection = strings.TrimSpace(selection)
	if selection == "" || strings.EqualFold(selection, "all") {
		all := make([]int, total)
		for i := range all {
			all[i] = i
		}
		return all
	}

	seen := make(map[int]bool)
	add := func(n int) {
		if n >= 1 && n <= total {
			seen[n-1] = true
		}
	}

	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				continue
			}
			for n := max(start, 1); n <= min(end, total); n++ {
				add(n)
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			add(n)
		}
	}

	indices := make([]int, 0, len(seen))
	for i := range seen {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// Select applies ParseSelection to proxies. It fails when nothing is left to
// test, which rejects the run before any probing starts.
func Select(proxies []proxy.Proxy, selection string) ([]proxy.Proxy, error) {
	indices := ParseSelection(selection, len(proxies))
	if len(indices) == 0 {
		return nil, errors.NewProxyError(errors.ErrorProxySelectionEmpty,
			"selection matched no proxies", "", nil).
			WithDetail("selection", selection).
			WithDetail("available", len(proxies))
	}

	selected := make([]proxy.Proxy, len(indices))
	for i, idx := range indices {
		selected[i] = proxies[idx]
	}
	return selected, nil
}

// ParseTargetURLs splits a comma-separated URL list, defaulting each entry to
// https:// when it has no scheme. Entries that do not validate are returned
// as warnings.
func ParseTargetURLs(raw string, validator *validation.ProxyValidator) ([]string, []string) {
	var urls, warnings []string
	seen := make(map[string]bool)

	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		u, err := validator.NormalizeTargetURL(part)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls, warnings
}
