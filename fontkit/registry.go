package fontkit

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Dario-Soria/Postty-sub002/logging"
	"github.com/Dario-Soria/Postty-sub002/scene"
)

// ErrFontNotFound 表示目录缺失、目录中无字体文件或请求的家族不存在。
var ErrFontNotFound = errors.New("字体未找到")

// Variant 对应一个具体字体文件及其 (family, weight, style) 元数据。
type Variant struct {
	Path   string
	Family string
	Style  scene.FontStyle
	Weight int
}

// familyIndex 为规范化家族名到变体列表的映射，构建完成后不再修改。
type familyIndex map[string][]Variant

// Registry 按目录惰性构建并缓存字体索引。首次构建持锁，后续解析只读。
// 同一目录内容与同一查询必然得到同一文件。
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	dirs map[string]familyIndex
}

// NewRegistry 创建空注册表。logger 为 nil 时静默。
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		logger: logger,
		dirs:   make(map[string]familyIndex),
	}
}

// Resolve 把 (family, weight, style) 解析为具体文件路径。
// 目录缺失、无字体文件或家族不存在时返回 ErrFontNotFound。
func (r *Registry) Resolve(fontsDir, family string, weight int, style scene.FontStyle) (string, error) {
	idx, err := r.index(fontsDir)
	if err != nil {
		return "", err
	}
	variants, ok := idx[NormalizeFamily(family)]
	if !ok {
		return "", fmt.Errorf("%w: 家族 %q 不在 %s 中", ErrFontNotFound, family, fontsDir)
	}
	return chooseVariant(variants, weight, style).Path, nil
}

// TryResolve 与 Resolve 相同，但以布尔值代替错误。
func (r *Registry) TryResolve(fontsDir, family string, weight int, style scene.FontStyle) (string, bool) {
	path, err := r.Resolve(fontsDir, family, weight, style)
	if err != nil {
		return "", false
	}
	return path, true
}

// ResolveAny 忽略家族名，在整个目录里选一个通用回退变体。
// 家族按规范化名称排序后取第一个，保证可复现。
func (r *Registry) ResolveAny(fontsDir string, weight int, style scene.FontStyle) (string, bool) {
	idx, err := r.index(fontsDir)
	if err != nil {
		return "", false
	}
	families := make([]string, 0, len(idx))
	for name := range idx {
		families = append(families, name)
	}
	if len(families) == 0 {
		return "", false
	}
	sort.Strings(families)
	return chooseVariant(idx[families[0]], weight, style).Path, true
}

// NormalizeFamily 去空白并转小写，作为索引键。
func NormalizeFamily(family string) string {
	return strings.ToLower(strings.TrimSpace(family))
}

// index 返回目录索引，必要时构建。双重检查避免并发下重复扫描。
func (r *Registry) index(fontsDir string) (familyIndex, error) {
	r.mu.RLock()
	idx, ok := r.dirs[fontsDir]
	r.mu.RUnlock()
	if ok {
		return idx, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.dirs[fontsDir]; ok {
		return idx, nil
	}
	idx, err := r.buildIndex(fontsDir)
	if err != nil {
		return nil, err
	}
	r.dirs[fontsDir] = idx
	return idx, nil
}

// buildIndex 扫描目录树并解析每个字体文件的元数据。
func (r *Registry) buildIndex(fontsDir string) (familyIndex, error) {
	files, err := listFontFiles(fontsDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: 目录 %s 中没有 .ttf/.otf 文件", ErrFontNotFound, fontsDir)
	}

	idx := make(familyIndex)
	for _, path := range files {
		m, err := LoadMetrics(path)
		if err != nil {
			r.logger.Warn("跳过无法解析的字体", "path", path, "err", err)
			continue
		}
		key := NormalizeFamily(m.Family)
		if key == "" {
			key = NormalizeFamily(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		}
		idx[key] = append(idx[key], Variant{
			Path:   path,
			Family: m.Family,
			Style:  m.Style,
			Weight: m.Weight,
		})
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: 目录 %s 中没有可解析的字体", ErrFontNotFound, fontsDir)
	}
	for key := range idx {
		sortVariants(idx[key])
	}
	return idx, nil
}

// listFontFiles 用显式栈迭代遍历目录树，结果按字典序排序保证确定性。
func listFontFiles(fontsDir string) ([]string, error) {
	info, err := os.Stat(fontsDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: 字体目录 %s 不可用", ErrFontNotFound, fontsDir)
	}

	var files []string
	stack := []string{fontsDir}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, path)
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".ttf", ".otf":
				files = append(files, path)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// sortVariants 的排序键为 (style, weight, path)，normal 在 italic 之前。
// 该顺序同时决定等距权重的平局裁决：排得靠前者胜出。
func sortVariants(variants []Variant) {
	sort.Slice(variants, func(i, j int) bool {
		a, b := variants[i], variants[j]
		if a.Style != b.Style {
			return a.Style == scene.StyleNormal
		}
		if a.Weight != b.Weight {
			return a.Weight < b.Weight
		}
		return a.Path < b.Path
	})
}

// chooseVariant 先按 style 过滤（无命中则退回全列表），再取权重距离最小者。
// 距离相同保留先遇到的，使结果与 sortVariants 的顺序一致。
func chooseVariant(variants []Variant, weight int, style scene.FontStyle) Variant {
	if weight <= 0 {
		weight = 400
	}
	if style == "" {
		style = scene.StyleNormal
	}
	pool := variants[:0:0]
	for _, v := range variants {
		if v.Style == style {
			pool = append(pool, v)
		}
	}
	if len(pool) == 0 {
		pool = variants
	}
	best := pool[0]
	bestDist := absInt(best.Weight - weight)
	for _, v := range pool[1:] {
		if d := absInt(v.Weight - weight); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
