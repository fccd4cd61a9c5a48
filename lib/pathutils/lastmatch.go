// DEADEND - No-response TCP server
//
// Copyright (c) 2014-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//
package pathutils

import (
	"path/filepath"
	"sort"
)

// LastMatch resolves a glob to its lexically last match. This is a plain
// string sort: "listeners-v9.conf" sorts after "listeners-v10.conf". A
// pattern with no matches is returned unchanged with ok set to false.
func LastMatch(pattern string) (match string, ok bool) {
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return pattern, false
	}
	sort.Strings(matches)
	return matches[len(matches)-1], true
}
