// Package fontfetch 在字体未预置时按需从远端字体目录下载并落盘缓存。
// 所有失败都退化为空结果并记录告警，绝不向调用方抛错；
// 同一 (family, weight, style) 的并发请求合并为一次网络下载。
package fontfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Dario-Soria/Postty-sub002/fontkit"
	"github.com/Dario-Soria/Postty-sub002/logging"
	"github.com/Dario-Soria/Postty-sub002/scene"
)

// DefaultCatalogURL 为默认的远端字体目录接口（Google Webfonts 兼容形态）。
const DefaultCatalogURL = "https://www.googleapis.com/webfonts/v1/webfonts"

// CatalogFamily 是目录中一个家族的条目，files 键形如
// "regular"、"italic"、"700"、"700italic"。
type CatalogFamily struct {
	Family string            `json:"family"`
	Files  map[string]string `json:"files"`
}

type catalogResponse struct {
	Items []CatalogFamily `json:"items"`
}

// Options 配置 Fetcher。零值字段取默认。
type Options struct {
	CatalogURL string
	APIKey     string
	Client     *http.Client
	Logger     *slog.Logger
}

// Fetcher 实现字体的按需获取。目录响应在进程生命周期内缓存一次，
// 下载合并由 singleflight 完成：同 key 共享一次在途请求，结束即移除。
type Fetcher struct {
	client     *http.Client
	catalogURL string
	apiKey     string
	logger     *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	catalog []CatalogFamily
}

// New 创建 Fetcher。
func New(opts Options) *Fetcher {
	f := &Fetcher{
		client:     opts.Client,
		catalogURL: opts.CatalogURL,
		apiKey:     opts.APIKey,
		logger:     opts.Logger,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 30 * time.Second}
	}
	if f.catalogURL == "" {
		f.catalogURL = DefaultCatalogURL
	}
	if f.logger == nil {
		f.logger = logging.Nop()
	}
	return f
}

// LocalPath 返回变体的规范缓存路径：<fontsDir>/<slug>/<weight>-<style>.ttf。
func LocalPath(fontsDir, family string, weight int, style scene.FontStyle) string {
	if weight <= 0 {
		weight = 400
	}
	if style == "" {
		style = scene.StyleNormal
	}
	return filepath.Join(fontsDir, Slug(family), fmt.Sprintf("%d-%s.ttf", weight, style))
}

// EnsureLocal 确保请求的变体在本地可用，返回文件路径；不可用返回空串。
// 命中缓存时不触网；否则合并并发请求后下载并原子落盘。
func (f *Fetcher) EnsureLocal(ctx context.Context, fontsDir, family string, weight int, style scene.FontStyle) string {
	if weight <= 0 {
		weight = 400
	}
	if style == "" {
		style = scene.StyleNormal
	}
	local := LocalPath(fontsDir, family, weight, style)
	if _, err := os.Stat(local); err == nil {
		return local
	}

	key := fmt.Sprintf("%s|%d|%s", fontkit.NormalizeFamily(family), weight, style)
	path, err, _ := f.group.Do(key, func() (any, error) {
		// 合并窗口内可能已有别的请求完成了落盘
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
		return f.download(ctx, local, family, weight, style)
	})
	if err != nil {
		f.logger.Warn("字体获取失败，回退到本地字体",
			"family", family, "weight", weight, "style", string(style), "err", err)
		return ""
	}
	return path.(string)
}

func (f *Fetcher) download(ctx context.Context, local, family string, weight int, style scene.FontStyle) (string, error) {
	if f.apiKey == "" {
		return "", fmt.Errorf("缺少字体目录 API key")
	}
	catalog, err := f.loadCatalog(ctx)
	if err != nil {
		return "", err
	}
	entry, ok := closestFamily(catalog, family)
	if !ok {
		return "", fmt.Errorf("目录中没有与 %q 接近的家族", family)
	}
	fileURL, ok := pickVariantFile(entry.Files, weight, style)
	if !ok {
		return "", fmt.Errorf("家族 %q 没有可用的 %d/%s 变体", entry.Family, weight, style)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("下载字体失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("下载字体失败: HTTP %d", resp.StatusCode)
	}

	// 写临时文件再原子重命名，读取方不可能看到半成品
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".fetch-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("写入字体缓存失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	f.logger.Info("字体已缓存", "family", entry.Family, "path", local)
	return local, nil
}

// loadCatalog 拉取并缓存远端目录；进程内只拉一次。
func (f *Fetcher) loadCatalog(ctx context.Context) ([]CatalogFamily, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.catalog != nil {
		return f.catalog, nil
	}

	u, err := url.Parse(f.catalogURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("key", f.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("拉取字体目录失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("拉取字体目录失败: HTTP %d", resp.StatusCode)
	}
	var parsed catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析字体目录失败: %w", err)
	}
	f.catalog = parsed.Items
	return f.catalog, nil
}

// closestFamily 先找规范化后的精确匹配，否则取编辑距离最小的家族。
func closestFamily(catalog []CatalogFamily, family string) (CatalogFamily, bool) {
	want := fontkit.NormalizeFamily(family)
	if want == "" || len(catalog) == 0 {
		return CatalogFamily{}, false
	}
	best := -1
	bestDist := 0
	for i, entry := range catalog {
		name := fontkit.NormalizeFamily(entry.Family)
		if name == want {
			return entry, true
		}
		d := editDistance(name, want)
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	// 距离过大视为无匹配，避免把 "Foobar" 解析成毫不相干的家族
	if bestDist > len(want)/2+1 {
		return CatalogFamily{}, false
	}
	return catalog[best], true
}

// pickVariantFile 在 files 键中选最接近请求权重的同风格变体，
// 全部落空时退回通用 regular/italic 文件。
func pickVariantFile(files map[string]string, weight int, style scene.FontStyle) (string, bool) {
	type candidate struct {
		weight int
		key    string
	}
	italic := style == scene.StyleItalic
	var pool []candidate
	for key := range files {
		k := strings.ToLower(key)
		isItalic := strings.Contains(k, "italic")
		if isItalic != italic {
			continue
		}
		num := strings.TrimSuffix(k, "italic")
		w := 400
		if num != "" && num != "regular" {
			n, err := strconv.Atoi(num)
			if err != nil {
				continue
			}
			w = n
		}
		pool = append(pool, candidate{weight: w, key: key})
	}
	if len(pool) == 0 {
		if italic {
			if u, ok := files["italic"]; ok {
				return u, true
			}
		}
		u, ok := files["regular"]
		return u, ok
	}
	best := pool[0]
	for _, c := range pool[1:] {
		better := absInt(c.weight-weight) < absInt(best.weight-weight)
		if better || (absInt(c.weight-weight) == absInt(best.weight-weight) && c.key < best.key) {
			best = c
		}
	}
	return files[best.key], true
}

// editDistance 为经典的 Levenshtein 距离，目录家族名都很短，O(n*m) 足够。
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Slug 把家族名转成目录安全的小写短横线形式。
func Slug(family string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(family)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
