package scene

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OverlayKind 标记叠加层类型。
type OverlayKind string

const (
	KindRect  OverlayKind = "rect"
	KindText  OverlayKind = "text"
	KindPath  OverlayKind = "path"
	KindImage OverlayKind = "image"
)

// Align 为文本水平对齐方式。
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// VerticalAlign 为文本在盒内的垂直对齐方式。
type VerticalAlign string

const (
	VAlignTop    VerticalAlign = "top"
	VAlignMiddle VerticalAlign = "middle"
	VAlignBottom VerticalAlign = "bottom"
)

// Overflow 描述文本超出盒子时的处理策略。
type Overflow string

const (
	OverflowClip     Overflow = "clip"     // 不调整，渲染器按盒裁剪
	OverflowEllipsis Overflow = "ellipsis" // 截断并追加省略号
	OverflowShrink   Overflow = "shrink"   // 缩小字号直至行宽放得下
	OverflowAuto     Overflow = "auto"     // 缩小字号，仍放不下再截断省略
)

// FontStyle 只区分 normal 与 italic。
type FontStyle string

const (
	StyleNormal FontStyle = "normal"
	StyleItalic FontStyle = "italic"
)

// Overlay 是叠加层的 tagged union，按 JSON 中的 type 字段分派到具体结构。
// 四个指针恰有一个非空。
type Overlay struct {
	Kind  OverlayKind
	Rect  *RectOverlay
	Text  *TextOverlay
	Path  *PathOverlay
	Image *ImageOverlay
}

// Common 为所有叠加层共享的字段。
type Common struct {
	Type      OverlayKind `json:"type"`
	ID        string      `json:"id,omitempty"`
	Opacity   *float64    `json:"opacity,omitempty"`
	BlendMode string      `json:"blendMode,omitempty"`
}

// Alpha 返回图层整体不透明度，未声明时为 1。
func (c *Common) Alpha() float64 {
	if c.Opacity == nil {
		return 1
	}
	if *c.Opacity < 0 {
		return 0
	}
	if *c.Opacity > 1 {
		return 1
	}
	return *c.Opacity
}

// Box 为像素坐标下的矩形区域。
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Stroke 描述描边颜色与线宽。
type Stroke struct {
	Color Color   `json:"color"`
	Width float64 `json:"width"`
}

// Shadow 描述文字投影。
type Shadow struct {
	Color   Color   `json:"color"`
	Blur    float64 `json:"blur"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Insets 为四边内边距。JSON 里既可写单个数字（四边相同），也可写对象。
type Insets struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// UnmarshalJSON 兼容数字与对象两种写法。
func (p *Insets) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if trimmed[0] != '{' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("padding 需为数字或对象: %w", err)
		}
		*p = Insets{Top: v, Right: v, Bottom: v, Left: v}
		return nil
	}
	type alias Insets
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Insets(v)
	return nil
}

// Transform 目前只支持绕指定原点的旋转；原点缺省为盒中心。
type Transform struct {
	Rotate float64   `json:"rotate"` // 角度，顺时针为正
	Origin *Position `json:"origin,omitempty"`
}

// FontSpec 描述文本叠加层的字体请求。
type FontSpec struct {
	Family        string    `json:"family"`
	Size          float64   `json:"size"`
	Weight        int       `json:"weight,omitempty"`
	Style         FontStyle `json:"style,omitempty"`
	LineHeight    float64   `json:"lineHeight,omitempty"`    // 相对字号的倍数
	LetterSpacing float64   `json:"letterSpacing,omitempty"` // 像素
}

// RectOverlay 绘制可选圆角的填充/描边矩形。
type RectOverlay struct {
	Common
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Radius float64 `json:"radius,omitempty"`
	Fill   *Color  `json:"fill,omitempty"`
	Stroke *Stroke `json:"stroke,omitempty"`
}

// PathOverlay 绘制一条或多条 SVG 风格路径。
type PathOverlay struct {
	Common
	Paths  []string `json:"paths"`
	Fill   *Color   `json:"fill,omitempty"`
	Stroke *Stroke  `json:"stroke,omitempty"`
}

// ImageOverlay 把栅格图片资源放入盒内，按 Fit 适配。
// Src 可为相对/绝对文件路径或 data: URI；资源缺失时该层退化为空操作。
type ImageOverlay struct {
	Common
	Src string `json:"src"`
	Box Box    `json:"box"`
	Fit Fit    `json:"fit,omitempty"`
}

// TextBackground 在文字后方垫一块可带圆角的底色盒。
type TextBackground struct {
	Color  Color   `json:"color"`
	Radius float64 `json:"radius,omitempty"`
}

// TextOverlay 描述一段需要排版的文本及其视觉属性。
type TextOverlay struct {
	Common
	Text          string          `json:"text"`
	Box           Box             `json:"box"`
	Align         Align           `json:"align,omitempty"`
	VerticalAlign VerticalAlign   `json:"verticalAlign,omitempty"`
	Font          FontSpec        `json:"font"`
	Fill          Color           `json:"fill"`
	Stroke        *Stroke         `json:"stroke,omitempty"`
	Shadow        *Shadow         `json:"shadow,omitempty"`
	Padding       Insets          `json:"padding,omitempty"`
	Background    *TextBackground `json:"background,omitempty"`
	Transform     *Transform      `json:"transform,omitempty"`
	MaxLines      int             `json:"maxLines,omitempty"`
	Overflow      Overflow        `json:"overflow,omitempty"`
	MinFontSize   float64         `json:"minFontSize,omitempty"`
}

func (t *TextOverlay) applyDefaults() {
	if t.Align == "" {
		t.Align = AlignLeft
	}
	if t.VerticalAlign == "" {
		t.VerticalAlign = VAlignTop
	}
	if t.Overflow == "" {
		t.Overflow = OverflowAuto
	}
	if t.MinFontSize <= 0 {
		t.MinFontSize = 8
	}
	if t.Font.Style == "" {
		t.Font.Style = StyleNormal
	}
	if t.Font.Weight == 0 {
		t.Font.Weight = 400
	}
	if t.Font.LineHeight <= 0 {
		t.Font.LineHeight = 1.2
	}
}

// Common 返回该叠加层的共享字段；指向底层结构，可写。
func (o *Overlay) Common() *Common {
	switch o.Kind {
	case KindRect:
		return &o.Rect.Common
	case KindText:
		return &o.Text.Common
	case KindPath:
		return &o.Path.Common
	case KindImage:
		return &o.Image.Common
	}
	return nil
}

// UnmarshalJSON 先探测 type 字段，再解码到对应的叠加层结构。
func (o *Overlay) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type OverlayKind `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Type {
	case KindRect:
		o.Rect = &RectOverlay{}
		o.Kind = KindRect
		return json.Unmarshal(data, o.Rect)
	case KindText:
		o.Text = &TextOverlay{}
		o.Kind = KindText
		return json.Unmarshal(data, o.Text)
	case KindPath:
		o.Path = &PathOverlay{}
		o.Kind = KindPath
		return json.Unmarshal(data, o.Path)
	case KindImage:
		o.Image = &ImageOverlay{}
		o.Kind = KindImage
		return json.Unmarshal(data, o.Image)
	default:
		return fmt.Errorf("未知的叠加层类型 %q", probe.Type)
	}
}

// MarshalJSON 输出与输入相同的扁平形态。
func (o Overlay) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case KindRect:
		return json.Marshal(o.Rect)
	case KindText:
		return json.Marshal(o.Text)
	case KindPath:
		return json.Marshal(o.Path)
	case KindImage:
		return json.Marshal(o.Image)
	default:
		return nil, fmt.Errorf("未知的叠加层类型 %q", o.Kind)
	}
}
