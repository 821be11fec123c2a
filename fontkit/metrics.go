// Package fontkit 负责本地字体的索引与度量：扫描目录、解析字体元数据、
// 按 (family, weight, style) 解析到具体文件，并为排版提供字形前进宽度。
package fontkit

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/Dario-Soria/Postty-sub002/scene"
)

// Metrics 是排版所需的封闭字体度量集合。Ascender/前进宽度均为字体单位，
// 由调用方按 fontSize/UnitsPerEm 换算为像素。
type Metrics struct {
	Path       string
	Family     string
	Style      scene.FontStyle
	Weight     int
	Ascender   float64
	UnitsPerEm float64

	mu   sync.Mutex
	font *sfnt.Font
	buf  sfnt.Buffer
	adv  map[rune]float64
}

// LoadMetrics 读取并解析一个 .ttf/.otf 文件。
func LoadMetrics(path string) (*Metrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体 %s 失败: %w", path, err)
	}
	m, err := ParseMetrics(data)
	if err != nil {
		return nil, fmt.Errorf("解析字体 %s 失败: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// ParseMetrics 从字体字节解析元数据与度量。
func ParseMetrics(data []byte) (*Metrics, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		font:   f,
		adv:    make(map[rune]float64),
		Weight: 400,
		Style:  scene.StyleNormal,
	}
	m.UnitsPerEm = float64(f.UnitsPerEm())
	if m.UnitsPerEm <= 0 {
		m.UnitsPerEm = 1000
	}

	var buf sfnt.Buffer
	family, _ := f.Name(&buf, sfnt.NameIDFamily)
	subfamily, _ := f.Name(&buf, sfnt.NameIDSubfamily)
	if family == "" {
		// 无家族名字段时回退到全名，并剥掉样式后缀
		full, _ := f.Name(&buf, sfnt.NameIDFull)
		family = stripStyleSuffix(full)
	}
	m.Family = strings.TrimSpace(family)

	if italicPattern.MatchString(subfamily) {
		m.Style = scene.StyleItalic
	}
	if w, ok := readOS2WeightClass(data); ok {
		m.Weight = w
	} else if w, ok := weightFromKeywords(subfamily); ok {
		m.Weight = w
	}

	ppem := fixed.I(int(m.UnitsPerEm))
	if fm, err := f.Metrics(&buf, ppem, font.HintingNone); err == nil {
		m.Ascender = fixedToFloat(fm.Ascent)
	}
	if m.Ascender <= 0 {
		m.Ascender = 0.8 * m.UnitsPerEm
	}
	return m, nil
}

// Advance 返回字形前进宽度（字体单位）。未覆盖的字符返回 false，
// 由排版层改用平均宽度估算。并发安全。
func (m *Metrics) Advance(r rune) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.adv[r]; ok {
		return w, w > 0
	}
	if m.font == nil {
		return 0, false
	}
	gi, err := m.font.GlyphIndex(&m.buf, r)
	if err != nil || gi == 0 {
		m.adv[r] = 0
		return 0, false
	}
	a, err := m.font.GlyphAdvance(&m.buf, gi, fixed.I(int(m.UnitsPerEm)), font.HintingNone)
	if err != nil {
		m.adv[r] = 0
		return 0, false
	}
	w := fixedToFloat(a)
	m.adv[r] = w
	return w, w > 0
}

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }

var italicPattern = regexp.MustCompile(`(?i)italic`)

// weightKeywords 按匹配优先级排列：更长的关键词在前，避免 "extrabold" 命中 "bold"。
var weightKeywords = []struct {
	key    string
	weight int
}{
	{"extralight", 200},
	{"ultralight", 200},
	{"extrabold", 800},
	{"ultrabold", 800},
	{"semibold", 600},
	{"demibold", 600},
	{"thin", 100},
	{"light", 300},
	{"medium", 500},
	{"bold", 700},
	{"black", 900},
	{"heavy", 900},
	{"regular", 400},
	{"normal", 400},
}

func weightFromKeywords(subfamily string) (int, bool) {
	s := strings.ToLower(subfamily)
	for _, kw := range weightKeywords {
		if strings.Contains(s, kw.key) {
			return kw.weight, true
		}
	}
	return 0, false
}

// stripStyleSuffix 从字体全名中剥掉形如 "Foo Bold Italic" 的样式尾缀。
func stripStyleSuffix(full string) string {
	name := strings.TrimSpace(full)
	for {
		trimmed := name
		for _, sep := range []string{" ", "-"} {
			idx := strings.LastIndex(trimmed, sep)
			if idx <= 0 {
				continue
			}
			tail := strings.ToLower(trimmed[idx+len(sep):])
			if tail == "italic" || tail == "oblique" {
				trimmed = strings.TrimSpace(trimmed[:idx])
				continue
			}
			if _, ok := weightFromKeywords(tail); ok && tail != "" {
				trimmed = strings.TrimSpace(trimmed[:idx])
			}
		}
		if trimmed == name {
			return name
		}
		name = trimmed
	}
}
