package fontkit

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Dario-Soria/Postty-sub002/scene"
)

func variants(weights ...int) []Variant {
	out := make([]Variant, 0, len(weights))
	for _, w := range weights {
		out = append(out, Variant{Path: "w", Style: scene.StyleNormal, Weight: w})
	}
	sortVariants(out)
	return out
}

// TestChooseVariantTieBreak 等距权重取排序靠前者：[300,400,700] 请求 550，
// 400 与 700 距离同为 150，选 400。
func TestChooseVariantTieBreak(t *testing.T) {
	vs := []Variant{
		{Path: "light.ttf", Style: scene.StyleNormal, Weight: 300},
		{Path: "regular.ttf", Style: scene.StyleNormal, Weight: 400},
		{Path: "bold.ttf", Style: scene.StyleNormal, Weight: 700},
	}
	sortVariants(vs)
	got := chooseVariant(vs, 550, scene.StyleNormal)
	if got.Weight != 400 {
		t.Fatalf("期望权重 400 胜出，实际 %d (%s)", got.Weight, got.Path)
	}
	// 同一输入重复解析，结果必须稳定
	for i := 0; i < 10; i++ {
		if again := chooseVariant(vs, 550, scene.StyleNormal); again != got {
			t.Fatalf("第 %d 次选择不一致: %+v", i, again)
		}
	}
}

// TestChooseVariantNearestWeight 取权重距离最小的变体。
func TestChooseVariantNearestWeight(t *testing.T) {
	vs := variants(100, 400, 900)
	cases := []struct{ want, expect int }{
		{100, 100},
		{350, 400},
		{700, 900},
		{0, 400}, // 非法请求回落到 400
	}
	for _, c := range cases {
		if got := chooseVariant(vs, c.want, scene.StyleNormal); got.Weight != c.expect {
			t.Fatalf("请求 %d 期望 %d，实际 %d", c.want, c.expect, got.Weight)
		}
	}
}

// TestChooseVariantStyleFilter 样式命中时只在同样式内选；全无命中退回全列表。
func TestChooseVariantStyleFilter(t *testing.T) {
	vs := []Variant{
		{Path: "regular.ttf", Style: scene.StyleNormal, Weight: 400},
		{Path: "italic.ttf", Style: scene.StyleItalic, Weight: 400},
	}
	sortVariants(vs)
	if got := chooseVariant(vs, 400, scene.StyleItalic); got.Path != "italic.ttf" {
		t.Fatalf("期望 italic 变体，实际 %s", got.Path)
	}
	onlyNormal := []Variant{{Path: "regular.ttf", Style: scene.StyleNormal, Weight: 400}}
	if got := chooseVariant(onlyNormal, 400, scene.StyleItalic); got.Path != "regular.ttf" {
		t.Fatalf("无 italic 时应退回 normal，实际 %s", got.Path)
	}
}

// TestResolveMissingDir 目录不存在时返回 ErrFontNotFound。
func TestResolveMissingDir(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve(t.TempDir()+"/nope", "Inter", 400, scene.StyleNormal)
	if !errors.Is(err, ErrFontNotFound) {
		t.Fatalf("期望 ErrFontNotFound，实际 %v", err)
	}
}

// TestResolveEmptyDir 目录中没有字体文件时同样返回 ErrFontNotFound。
func TestResolveEmptyDir(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve(t.TempDir(), "Inter", 400, scene.StyleNormal)
	if !errors.Is(err, ErrFontNotFound) {
		t.Fatalf("期望 ErrFontNotFound，实际 %v", err)
	}
	if _, ok := r.ResolveAny(t.TempDir(), 400, scene.StyleNormal); ok {
		t.Fatalf("空目录的 ResolveAny 应失败")
	}
}

// TestNormalizeFamily 家族名大小写与首尾空白不影响索引键。
func TestNormalizeFamily(t *testing.T) {
	if NormalizeFamily("  Noto Sans SC ") != "noto sans sc" {
		t.Fatalf("规范化结果错误: %q", NormalizeFamily("  Noto Sans SC "))
	}
}

// TestWeightFromKeywords 长关键词优先，避免 extrabold 被 bold 抢先命中。
func TestWeightFromKeywords(t *testing.T) {
	cases := []struct {
		sub    string
		weight int
		ok     bool
	}{
		{"Bold", 700, true},
		{"ExtraBold", 800, true},
		{"SemiBold Italic", 600, true},
		{"Regular", 400, true},
		{"Oblique", 0, false},
	}
	for _, c := range cases {
		w, ok := weightFromKeywords(c.sub)
		if w != c.weight || ok != c.ok {
			t.Fatalf("%q: 期望 (%d,%v)，实际 (%d,%v)", c.sub, c.weight, c.ok, w, ok)
		}
	}
}

// TestStripStyleSuffix 从全名中逐层剥掉样式尾缀。
func TestStripStyleSuffix(t *testing.T) {
	cases := []struct{ in, out string }{
		{"Inter Bold Italic", "Inter"},
		{"Roboto-Light", "Roboto"},
		{"Open Sans", "Open Sans"},
		{"Lato", "Lato"},
	}
	for _, c := range cases {
		if got := stripStyleSuffix(c.in); got != c.out {
			t.Fatalf("%q: 期望 %q，实际 %q", c.in, c.out, got)
		}
	}
}

// buildOS2Font 构造只含表目录与 OS/2 表的最小 sfnt 字节序列。
func buildOS2Font(weightClass uint16) []byte {
	const tableOffset = 12 + 16
	data := make([]byte, tableOffset+6)
	binary.BigEndian.PutUint32(data[0:4], 0x00010000)
	binary.BigEndian.PutUint16(data[4:6], 1)
	copy(data[12:16], "OS/2")
	binary.BigEndian.PutUint32(data[20:24], tableOffset)
	binary.BigEndian.PutUint32(data[24:28], 6)
	binary.BigEndian.PutUint16(data[tableOffset+4:tableOffset+6], weightClass)
	return data
}

// TestReadOS2WeightClass 直接从表目录定位 usWeightClass 并收敛到百位刻度。
func TestReadOS2WeightClass(t *testing.T) {
	cases := []struct {
		class  uint16
		weight int
		ok     bool
	}{
		{400, 400, true},
		{653, 700, true},
		{50, 100, true},
		{950, 900, true},
		{0, 0, false}, // 规范外的值拒绝
	}
	for _, c := range cases {
		w, ok := readOS2WeightClass(buildOS2Font(c.class))
		if w != c.weight || ok != c.ok {
			t.Fatalf("class=%d: 期望 (%d,%v)，实际 (%d,%v)", c.class, c.weight, c.ok, w, ok)
		}
	}
	if _, ok := readOS2WeightClass([]byte{1, 2, 3}); ok {
		t.Fatalf("残缺字节不应解析成功")
	}
}

// TestAdvanceWithoutFont 未加载字形表时 Advance 报告未覆盖而非崩溃。
func TestAdvanceWithoutFont(t *testing.T) {
	m := &Metrics{UnitsPerEm: 1000}
	if _, ok := m.Advance('A'); ok {
		t.Fatalf("无字体数据时不应返回前进宽度")
	}
}
