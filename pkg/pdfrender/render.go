package pdfrender

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PageImage is one rendered PDF page on disk.
type PageImage struct {
	PageNumber int
	ImagePath  string
}

// Renderer downloads PDF documents and renders their pages to JPEGs using the
// pdftoppm tool.
type Renderer struct {
	PdftoppmPath string
	DPI          int
	httpClient   *http.Client
}

func New(pdftoppmPath string, dpi int) *Renderer {
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &Renderer{
		PdftoppmPath: pdftoppmPath,
		DPI:          dpi,
		httpClient:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Download fetches the PDF into destPath. The destination is overwritten, so
// re-running a delivery for the same job is safe.
func (r *Renderer) Download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download pdf: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create pdf file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write pdf file: %w", err)
	}
	return nil
}

// RenderPages renders every page of the PDF at pdfPath into dir as
// page-N.jpg, returning the pages sorted by page number. Paths are stable
// across re-runs of the same job.
func (r *Renderer) RenderPages(ctx context.Context, pdfPath, dir string) ([]PageImage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	// pdftoppm -r <dpi> -jpeg <in.pdf> <dir>/page
	cmd := exec.CommandContext(ctx, r.PdftoppmPath, "-r", strconv.Itoa(r.DPI), "-jpeg", pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, string(out))
	}

	// pdftoppm names output page-1.jpg, page-2.jpg, ... (zero-padded for
	// larger documents)
	matches, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no page images")
	}

	pages := make([]PageImage, 0, len(matches))
	for _, path := range matches {
		num, err := pageNumber(path)
		if err != nil {
			continue
		}
		pages = append(pages, PageImage{PageNumber: num, ImagePath: path})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no parsable page images under %s", dir)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func pageNumber(path string) (int, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0, fmt.Errorf("no page suffix in %q", path)
	}
	return strconv.Atoi(base[idx+1:])
}
