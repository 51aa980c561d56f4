package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
)

// CookieFile carries the cookies of one API origin from one process to the
// next. Only names and values survive; restored cookies are scoped to "/".
type CookieFile struct {
	path string
}

func NewCookieFile(path string) *CookieFile {
	return &CookieFile{path: path}
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Restore loads saved cookies into jar for u. A missing file is not an error.
func (f *CookieFile) Restore(jar http.CookieJar, u *url.URL) error {
	buf, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(buf, &stored); err != nil {
		return fmt.Errorf("decode cookies %s: %w", f.path, err)
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(u, cookies)
	return nil
}

// Save writes the jar's current cookies for u. An empty jar removes the file.
func (f *CookieFile) Save(jar http.CookieJar, u *url.URL) error {
	cookies := jar.Cookies(u)
	if len(cookies) == 0 {
		return removeFile(f.path)
	}

	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}
	buf, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return writeFileAtomic(f.path, buf)
}
