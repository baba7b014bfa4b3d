package uploader

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var photoExtensions = map[string]bool{
	".avif": true, ".bmp": true, ".gif": true, ".heic": true, ".ico": true,
	".jpg": true, ".jpeg": true, ".png": true, ".tiff": true, ".webp": true,
	".cr2": true, ".cr3": true, ".nef": true, ".arw": true, ".orf": true,
	".raf": true, ".rw2": true, ".pef": true, ".sr2": true, ".dng": true,
}

var videoExtensions = map[string]bool{
	".3gp": true, ".3g2": true, ".asf": true, ".avi": true, ".divx": true,
	".m2t": true, ".m2ts": true, ".m4v": true, ".mkv": true, ".mmv": true,
	".mod": true, ".mov": true, ".mp4": true, ".mpg": true, ".mpeg": true,
	".mts": true, ".tod": true, ".wmv": true, ".ts": true,
}

// IsMediaFile reports whether the path has a photo or video extension that
// the service accepts.
func IsMediaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return photoExtensions[ext] || videoExtensions[ext]
}

// CollectMediaFiles expands the given paths into a sorted, de-duplicated list
// of media files. Directories are walked, one level deep by default or fully
// when recursive is set. Paths that cannot be stat-ed are treated as plain
// files and pass through the extension filter.
func CollectMediaFiles(paths []string, recursive bool) []string {
	seen := make(map[string]bool)
	var result []string

	add := func(p string) {
		if !IsMediaFile(p) || seen[p] {
			return
		}
		seen[p] = true
		result = append(result, p)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			add(p)
			continue
		}

		if recursive {
			_ = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if !d.IsDir() {
					add(path)
				}
				return nil
			})
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				add(filepath.Join(p, e.Name()))
			}
		}
	}

	sort.Strings(result)
	return result
}
