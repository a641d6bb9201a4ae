// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/pyresolve/pkg/python"
	rname "github.com/datawire/pyresolve/pkg/resolve/name"
	"github.com/datawire/pyresolve/pkg/resolve/requirement"
	"github.com/datawire/pyresolve/pkg/resolve/version"
)

// PyPIBaseURL is the default Simple API root, as in pep503's client.
const PyPIBaseURL = "https://pypi.org/simple/"

// SupportedAPIVersion is the highest PEP 629 "pypi:repository-version" this
// client understands; a server advertising a newer major version is refused.
var SupportedAPIVersion = version.MustParse("1.0") //nolint:gochecknoglobals // fixed compatibility ceiling

// Client is an Index backed by a Simple Repository API server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string

	// Python, if set, filters file listings by their "data-requires-python"
	// attribute (PEP 503 extension).
	Python *version.Version

	// Tags, if set, is consulted to prefer a compatible wheel over an sdist
	// in SelectArchive.
	Tags InstallerTags
}

func (c *Client) fillDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = PyPIBaseURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.UserAgent == "" {
		c.UserAgent = "github.com/datawire/pyresolve/pkg/resolve/index"
	}
}

type httpError struct {
	status     string
	statusCode int
}

func (e *httpError) Error() string { return fmt.Sprintf("HTTP %s", e.status) }

// get performs a GET (no credentials are sent), verifying any checksum fragment on the
// URL (PEP 503's download-URL convention) the same way pep503's Client does.
func (c *Client) get(ctx context.Context, requestURL string) (*url.URL, []byte, error) {
	c.fillDefaults()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %q: %w", requestURL, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %q: %w", requestURL, err)
	}
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %q: %w", requestURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %q: %w", requestURL, &httpError{resp.Status, resp.StatusCode})
	}
	if u, err := url.Parse(requestURL); err == nil && u.Fragment != "" {
		if err := verifyFragmentChecksum(u.Fragment, content); err != nil {
			return nil, nil, fmt.Errorf("GET %q: %w", requestURL, err)
		}
	}
	return resp.Request.URL, content, nil
}

func verifyFragmentChecksum(fragment string, content []byte) error {
	keyvals, err := url.ParseQuery(fragment)
	if err != nil {
		return nil //nolint:nilerr // a non-checksum fragment is not an error
	}
	for key, vals := range keyvals {
		newHash, ok := python.HashlibAlgorithmsGuaranteed[key]
		if !ok {
			continue
		}
		h := newHash()
		h.Write(content)
		actual := hex.EncodeToString(h.Sum(nil))
		for _, want := range vals {
			if actual != want {
				return fmt.Errorf("checksum mismatch: %s: expected=%s actual=%s", key, want, actual)
			}
		}
	}
	return nil
}

func visitHTML(node *html.Node, fn func(*html.Node) error) error {
	if err := fn(node); err != nil {
		return err
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if err := visitHTML(child, fn); err != nil {
			return err
		}
	}
	return nil
}

type link struct {
	text      string
	href      string
	dataAttrs map[string]string
}

func (c *Client) getHTML5Index(ctx context.Context, requestURL string) ([]link, error) {
	location, content, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	if err := c.checkAPIVersion(ctx, doc); err != nil {
		return nil, err
	}

	var links []link
	err = visitHTML(doc, func(node *html.Node) error {
		if node.Type != html.ElementNode || node.Data != "a" {
			return nil
		}
		l := link{dataAttrs: make(map[string]string)}
		for _, attr := range node.Attr {
			switch {
			case attr.Namespace == "" && attr.Key == "href":
				href, err := location.Parse(attr.Val)
				if err != nil {
					return err
				}
				l.href = href.String()
			case attr.Namespace == "" && strings.HasPrefix(attr.Key, "data-"):
				l.dataAttrs[attr.Key] = attr.Val
			}
		}
		var text strings.Builder
		_ = visitHTML(node, func(child *html.Node) error {
			if child.Type == html.TextNode {
				text.WriteString(child.Data)
			}
			return nil
		})
		l.text = text.String()
		links = append(links, l)
		return nil
	})
	return links, err
}

// checkAPIVersion implements PEP 629: refuse a server advertising a newer
// major API version, and warn (not fail) on a newer minor version.
func (c *Client) checkAPIVersion(ctx context.Context, doc *html.Node) error {
	verStr := "1.0"
	_ = visitHTML(doc, func(node *html.Node) error {
		if node.Type != html.ElementNode || node.Data != "meta" {
			return nil
		}
		var name, content string
		for _, attr := range node.Attr {
			switch attr.Key {
			case "name":
				name = attr.Val
			case "content":
				content = attr.Val
			}
		}
		if name == "pypi:repository-version" && content != "" {
			verStr = content
		}
		return nil
	})
	v, err := version.Parse(verStr)
	if err != nil {
		return nil //nolint:nilerr // an unparsable advertised version is not fatal
	}
	if v.Major() > SupportedAPIVersion.Major() {
		return fmt.Errorf("server's pypi:repository-version (%s) is not compatible with this client", v)
	}
	if v.Minor() > SupportedAPIVersion.Minor() {
		dlog.Warnf(ctx, "server's pypi:repository-version (%s) is newer than this client supports", v)
	}
	return nil
}

var reValidName = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func (c *Client) RealName(ctx context.Context, name string) (string, error) {
	c.fillDefaults()
	links, err := c.listPackages(ctx)
	if err != nil {
		return "", err
	}
	want := rname.Normalize(name)
	for _, l := range links {
		if rname.Normalize(l.text) == want {
			return l.text, nil
		}
	}
	return "", fmt.Errorf("index: no such package: %q", name)
}

func (c *Client) listPackages(ctx context.Context) ([]link, error) {
	return c.getHTML5Index(ctx, c.BaseURL)
}

func (c *Client) listFiles(ctx context.Context, pkgname string) ([]link, error) {
	if !reValidName.MatchString(pkgname) {
		return nil, fmt.Errorf("index: illegal character in package name: %q", pkgname)
	}
	c.fillDefaults()
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, rname.Normalize(pkgname)) + "/"
	links, err := c.getHTML5Index(ctx, u.String())
	if err != nil {
		return nil, err
	}
	if c.Python == nil {
		return links, nil
	}
	filtered := links[:0]
	for _, l := range links {
		if reqPy := l.dataAttrs["data-requires-python"]; reqPy != "" {
			if req, err := requirement.Parse("python" + reqPy); err == nil && !req.Satisfies(*c.Python) {
				continue
			}
		}
		filtered = append(filtered, l)
	}
	return filtered, nil
}

func isYanked(l link) bool {
	_, yanked := l.dataAttrs["data-yanked"]
	return yanked
}

func (c *Client) PackageReleases(ctx context.Context, name string) ([]string, error) {
	links, err := c.listFiles(ctx, name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, l := range links {
		info, err := parseFilename(l.text)
		if err != nil {
			continue
		}
		v := info.Version.String()
		if isYanked(l) {
			continue
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *Client) ReleaseURLs(ctx context.Context, name, ver string) ([]ReleaseFile, error) {
	links, err := c.listFiles(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []ReleaseFile
	for _, l := range links {
		info, err := parseFilename(l.text)
		if err != nil {
			continue
		}
		if info.Version.String() != ver {
			continue
		}
		out = append(out, ReleaseFile{
			PackageType: info.packageType(),
			URL:         l.href,
			Yanked:      isYanked(l),
		})
	}
	return out, nil
}

// SelectArchive picks the file to download for (name, version): a wheel
// compatible with c.Tags if one exists, else the sdist, else any remaining
// file — a realistic refinement of spec §6's bare release_urls contract, since
// a real resolver prefers binary wheels to building from source.
func (c *Client) SelectArchive(ctx context.Context, name, ver string) (ReleaseFile, error) {
	files, err := c.ReleaseURLs(ctx, name, ver)
	if err != nil {
		return ReleaseFile{}, err
	}
	if len(files) == 0 {
		return ReleaseFile{}, fmt.Errorf("index: no files for %s==%s", name, ver)
	}
	var sdist *ReleaseFile
	for i := range files {
		f := &files[i]
		if f.PackageType != "bdist_wheel" {
			if f.PackageType == "sdist" && sdist == nil {
				sdist = f
			}
			continue
		}
		if c.Tags == nil {
			continue
		}
		tag, err := filenameTag(f.URL)
		if err == nil && c.Tags.Supports(tag) {
			return *f, nil
		}
	}
	if sdist != nil {
		return *sdist, nil
	}
	return files[0], nil
}

func filenameTag(urlStr string) (Tag, error) {
	info, err := parseFilename(path.Base(urlStr))
	if err != nil {
		return Tag{}, err
	}
	return info.CompatibilityTag, nil
}

var _ Index = (*Client)(nil)
