// Package layout 实现文本排版引擎：给定文本叠加层与已解析的字体度量，
// 计算折行、字号收缩、截断省略与基线几何。纯函数，无 I/O，无共享状态，
// 可在任意 goroutine 并行调用。
package layout

import (
	"math"
	"strings"

	"github.com/Dario-Soria/Postty-sub002/fontkit"
	"github.com/Dario-Soria/Postty-sub002/scene"
)

// Anchor 为文本水平锚点，与矢量后端的 text-anchor 语义一致。
type Anchor string

const (
	AnchorStart  Anchor = "start"
	AnchorMiddle Anchor = "middle"
	AnchorEnd    Anchor = "end"
)

// Ellipsis 为截断时追加的省略号。
const Ellipsis = "…"

// 无字体可用时的估算参数：平均字形宽与上升部均按字号比例取值。
const (
	heuristicAdvanceRatio = 0.6
	heuristicAscentRatio  = 0.8
)

// LaidOutText 是一次排版调用的完整结果，每次调用新建，之后不再修改。
type LaidOutText struct {
	FontPath       string   `json:"fontPath,omitempty"`
	FontSize       float64  `json:"fontSize"`
	LineHeight     float64  `json:"lineHeight"`
	Lines          []string `json:"lines"`
	StartX         float64  `json:"startX"`
	FirstBaselineY float64  `json:"firstBaselineY"`
	Anchor         Anchor   `json:"anchor"`
}

// Layout 对一个文本叠加层执行完整排版。metrics 可为 nil，此时使用估算宽度。
//
// 流程：内容矩形 = 盒减内边距；shrink/auto 策略从声明字号逐 1 递减到
// MinFontSize，取第一个同时满足宽、高、行数约束的字号，否则接受最小字号
// 的结果；随后按策略截断并对最后一行做省略号二分；最后计算基线与锚点。
func Layout(t *scene.TextOverlay, metrics *fontkit.Metrics) *LaidOutText {
	innerX := t.Box.X + t.Padding.Left
	innerY := t.Box.Y + t.Padding.Top
	innerW := t.Box.Width - t.Padding.Left - t.Padding.Right
	innerH := t.Box.Height - t.Padding.Top - t.Padding.Bottom
	if innerW < 1 {
		innerW = 1
	}
	if innerH < 1 {
		innerH = 1
	}

	shrinking := t.Overflow == scene.OverflowShrink || t.Overflow == scene.OverflowAuto
	bounded := t.Overflow == scene.OverflowAuto || t.Overflow == scene.OverflowEllipsis

	size := t.Font.Size
	minSize := t.MinFontSize
	if minSize > size {
		minSize = size
	}

	var lines []string
	for {
		ms := measurer{metrics: metrics, size: size, letterSpacing: t.Font.LetterSpacing}
		lines = wrapText(t.Text, ms, innerW)
		if !shrinking {
			// clip/ellipsis 只有这一个候选字号，无条件接受
			break
		}
		if fits(lines, ms, size, t, innerW, innerH, bounded) {
			break
		}
		if size-1 < minSize {
			// 到达下限，接受最小字号的结果
			break
		}
		size--
	}

	ms := measurer{metrics: metrics, size: size, letterSpacing: t.Font.LetterSpacing}
	lineHeight := size * t.Font.LineHeight

	// auto/ellipsis 截断到可见行数；被截掉内容时把最后一行换成省略版本。
	// auto 在循环内放得下时行数不超容量，这里自然不触发。
	if bounded {
		visible := capacityLines(lineHeight, innerH, t.MaxLines)
		if visible > len(lines) {
			visible = len(lines)
		}
		if len(lines) > visible {
			lines = lines[:visible]
			lines[len(lines)-1] = ellipsize(lines[len(lines)-1], ms, innerW)
		}
	}

	ascent := heuristicAscentRatio * size
	if metrics != nil && metrics.UnitsPerEm > 0 {
		ascent = metrics.Ascender / metrics.UnitsPerEm * size
	}
	blockHeight := float64(len(lines)) * lineHeight
	top := innerY
	switch t.VerticalAlign {
	case scene.VAlignMiddle:
		top = innerY + (innerH-blockHeight)/2
	case scene.VAlignBottom:
		top = innerY + innerH - blockHeight
	}

	out := &LaidOutText{
		FontSize:       size,
		LineHeight:     lineHeight,
		Lines:          lines,
		FirstBaselineY: top + ascent,
	}
	if metrics != nil {
		out.FontPath = metrics.Path
	}
	switch t.Align {
	case scene.AlignCenter:
		out.Anchor = AnchorMiddle
		out.StartX = innerX + innerW/2
	case scene.AlignRight:
		out.Anchor = AnchorEnd
		out.StartX = innerX + innerW
	default:
		out.Anchor = AnchorStart
		out.StartX = innerX
	}
	return out
}

// measurer 在固定字号与字距下测量文本宽度。
type measurer struct {
	metrics       *fontkit.Metrics
	size          float64
	letterSpacing float64
}

func (ms measurer) advance(r rune) float64 {
	if ms.metrics != nil && ms.metrics.UnitsPerEm > 0 {
		if a, ok := ms.metrics.Advance(r); ok {
			return a / ms.metrics.UnitsPerEm * ms.size
		}
	}
	return heuristicAdvanceRatio * ms.size
}

// width 为字形前进宽度之和加上字形之间的字距。
func (ms measurer) width(s string) float64 {
	w := 0.0
	n := 0
	for _, r := range s {
		w += ms.advance(r)
		n++
	}
	if n > 1 {
		w += ms.letterSpacing * float64(n-1)
	}
	return w
}

// wrapText 按显式换行拆段，段内贪心装词；超宽的单词按字符继续贪心拆分。
func wrapText(text string, ms measurer, innerW float64) []string {
	eps := epsilon(innerW)
	text = strings.ReplaceAll(text, "\r", "")
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		flush := func() {
			lines = append(lines, current)
			current = ""
		}
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if ms.width(candidate) <= innerW+eps {
				current = candidate
				continue
			}
			if current != "" {
				flush()
			}
			if ms.width(word) <= innerW+eps {
				current = word
				continue
			}
			// 单词本身超宽：按字符贪心切块，最后一块留在当前行继续装词
			for _, chunk := range splitWordByWidth(word, ms, innerW+eps) {
				if current != "" {
					flush()
				}
				current = chunk
			}
		}
		if current != "" {
			flush()
		}
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

// splitWordByWidth 把超宽单词拆成若干不超过 limit 的块；单字符超宽时独占一块。
func splitWordByWidth(word string, ms measurer, limit float64) []string {
	var parts []string
	var b strings.Builder
	for _, r := range word {
		b.WriteRune(r)
		if ms.width(b.String()) > limit && len([]rune(b.String())) > 1 {
			runes := []rune(b.String())
			parts = append(parts, string(runes[:len(runes)-1]))
			b.Reset()
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

// fits 检查三项约束：行宽恒查；总高与行数只对 auto/ellipsis 生效。
func fits(lines []string, ms measurer, size float64, t *scene.TextOverlay, innerW, innerH float64, bounded bool) bool {
	eps := epsilon(innerW)
	for _, line := range lines {
		if ms.width(line) > innerW+eps {
			return false
		}
	}
	// 词是收缩的最小单位：存在比内容区更宽的词时继续下调字号；
	// 按字符硬拆只在最小字号与非收缩策略里兜底
	for _, word := range strings.Fields(t.Text) {
		if ms.width(word) > innerW+eps {
			return false
		}
	}
	if !bounded {
		return true
	}
	lineHeight := size * t.Font.LineHeight
	if float64(len(lines))*lineHeight > innerH+epsilon(innerH) {
		return false
	}
	return len(lines) <= capacityLines(lineHeight, innerH, t.MaxLines)
}

// capacityLines 取 maxLines 与按高度推导的容量中较小者，至少为 1。
func capacityLines(lineHeight, innerH float64, maxLines int) int {
	capacity := math.MaxInt32
	if lineHeight > 0 {
		capacity = int((innerH + epsilon(innerH)) / lineHeight)
	}
	if maxLines > 0 && maxLines < capacity {
		capacity = maxLines
	}
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}

// ellipsize 在行的字符前缀上二分，找到能容下 "前缀…" 的最长前缀。
// 连省略号本身都放不下时返回空串。
func ellipsize(line string, ms measurer, innerW float64) string {
	eps := epsilon(innerW)
	fitsWidth := func(prefixLen int, runes []rune) bool {
		s := strings.TrimRight(string(runes[:prefixLen]), " ")
		return ms.width(s+Ellipsis) <= innerW+eps
	}
	runes := []rune(line)
	if fitsWidth(len(runes), runes) {
		return strings.TrimRight(line, " ") + Ellipsis
	}
	if !fitsWidth(0, runes) {
		return ""
	}
	lo, hi := 0, len(runes) // 不变式：fits(lo) 为真，fits(hi) 为假
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if fitsWidth(mid, runes) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return strings.TrimRight(string(runes[:lo]), " ") + Ellipsis
}

// epsilon 返回随量纲缩放的浮点比较容差，避免舍入造成的假阴性。
func epsilon(scale float64) float64 {
	return 1e-6 * math.Max(1, scale)
}
