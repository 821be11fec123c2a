package dsl

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Dario-Soria/Postty-sub002/scene"
)

// ParseScene 解析 DSL 并降解为场景模型，是命令行处理 .scene 文件的入口。
func ParseScene(r io.Reader) (*scene.Scene, error) {
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return Lower(doc)
}

// Lower 把解析出的文档降解为 scene.Scene，命令顺序即图层顺序。
func Lower(doc *Document) (*scene.Scene, error) {
	width, err := strconv.Atoi(doc.Width)
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("%s: 画布宽度无效: %s", doc.Pos, doc.Width)
	}
	height, err := strconv.Atoi(doc.Height)
	if err != nil || height <= 0 {
		return nil, fmt.Errorf("%s: 画布高度无效: %s", doc.Pos, doc.Height)
	}

	s := &scene.Scene{Canvas: scene.Canvas{Width: width, Height: height}}
	for _, cmd := range doc.Commands {
		if err := lowerCommand(s, cmd); err != nil {
			return nil, err
		}
	}
	s.ApplyDefaults()
	return s, nil
}

func lowerCommand(s *scene.Scene, cmd *Command) error {
	props, err := collectProps(cmd)
	if err != nil {
		return err
	}
	switch cmd.Name {
	case "background":
		return lowerBackground(s, cmd, props)
	case "vignette":
		return lowerVignette(s, cmd, props)
	case "grain":
		return lowerGrain(s, cmd, props)
	case "rect":
		return lowerRect(s, cmd, props)
	case "text":
		return lowerText(s, cmd, props)
	case "image":
		return lowerImage(s, cmd, props)
	case "path":
		return lowerPath(s, cmd, props)
	default:
		return fmt.Errorf("%s: 未知命令 %q", cmd.Pos, cmd.Name)
	}
}

func lowerBackground(s *scene.Scene, cmd *Command, props propMap) error {
	if cmd.Arg != nil {
		s.Canvas.BackgroundFit = scene.ParseFit(string(*cmd.Arg))
	}
	if v, ok := props["fit"]; ok {
		s.Canvas.BackgroundFit = scene.ParseFit(v.text())
	}
	if v, ok := props["position"]; ok {
		nums, err := v.floats(2)
		if err != nil {
			return fmt.Errorf("%s: background position: %w", cmd.Pos, err)
		}
		s.Canvas.BackgroundPosition = scene.Position{X: nums[0], Y: nums[1]}
	}
	return nil
}

func lowerVignette(s *scene.Scene, cmd *Command, props propMap) error {
	vg := &scene.Vignette{Color: scene.Color{A: 0xff}}
	if v, ok := props["color"]; ok {
		c, err := v.color()
		if err != nil {
			return fmt.Errorf("%s: vignette color: %w", cmd.Pos, err)
		}
		vg.Color = c
	}
	if v, ok := props["strength"]; ok {
		vg.Strength = v.float()
	}
	if v, ok := props["radius"]; ok {
		vg.Radius = v.float()
	}
	effects(s).Vignette = vg
	return nil
}

func lowerGrain(s *scene.Scene, _ *Command, props propMap) error {
	g := &scene.Grain{}
	if v, ok := props["amount"]; ok {
		g.Amount = v.float()
	}
	if v, ok := props["opacity"]; ok {
		g.Opacity = v.float()
	}
	effects(s).Grain = g
	return nil
}

func lowerRect(s *scene.Scene, cmd *Command, props propMap) error {
	rc := &scene.RectOverlay{Common: scene.Common{Type: scene.KindRect}}
	if v, ok := props["box"]; ok {
		box, err := v.box()
		if err != nil {
			return fmt.Errorf("%s: rect box: %w", cmd.Pos, err)
		}
		rc.X, rc.Y, rc.Width, rc.Height = box.X, box.Y, box.Width, box.Height
	}
	if v, ok := props["radius"]; ok {
		rc.Radius = v.float()
	}
	if v, ok := props["fill"]; ok {
		c, err := v.color()
		if err != nil {
			return fmt.Errorf("%s: rect fill: %w", cmd.Pos, err)
		}
		rc.Fill = &c
	}
	if v, ok := props["stroke"]; ok {
		st, err := v.stroke()
		if err != nil {
			return fmt.Errorf("%s: rect stroke: %w", cmd.Pos, err)
		}
		rc.Stroke = st
	}
	applyCommon(&rc.Common, props)
	s.Overlays = append(s.Overlays, scene.Overlay{Kind: scene.KindRect, Rect: rc})
	return nil
}

func lowerText(s *scene.Scene, cmd *Command, props propMap) error {
	if cmd.Arg == nil {
		return fmt.Errorf("%s: text 命令缺少文本内容", cmd.Pos)
	}
	t := &scene.TextOverlay{
		Common: scene.Common{Type: scene.KindText},
		Text:   string(*cmd.Arg),
		Fill:   scene.Color{A: 0xff},
	}
	box, ok := props["box"]
	if !ok {
		return fmt.Errorf("%s: text 命令缺少 box 属性", cmd.Pos)
	}
	b, err := box.box()
	if err != nil {
		return fmt.Errorf("%s: text box: %w", cmd.Pos, err)
	}
	t.Box = b

	if v, ok := props["font"]; ok {
		t.Font.Family = v.text()
	}
	if v, ok := props["size"]; ok {
		t.Font.Size = v.float()
	}
	if v, ok := props["weight"]; ok {
		t.Font.Weight = int(v.float())
	}
	if v, ok := props["style"]; ok && v.text() == "italic" {
		t.Font.Style = scene.StyleItalic
	}
	if v, ok := props["line-height"]; ok {
		t.Font.LineHeight = v.float()
	}
	if v, ok := props["letter-spacing"]; ok {
		t.Font.LetterSpacing = v.float()
	}
	if v, ok := props["align"]; ok {
		t.Align = scene.Align(v.text())
	}
	if v, ok := props["valign"]; ok {
		t.VerticalAlign = scene.VerticalAlign(v.text())
	}
	if v, ok := props["overflow"]; ok {
		t.Overflow = scene.Overflow(v.text())
	}
	if v, ok := props["min-font-size"]; ok {
		t.MinFontSize = v.float()
	}
	if v, ok := props["max-lines"]; ok {
		t.MaxLines = int(v.float())
	}
	if v, ok := props["fill"]; ok {
		c, err := v.color()
		if err != nil {
			return fmt.Errorf("%s: text fill: %w", cmd.Pos, err)
		}
		t.Fill = c
	}
	if v, ok := props["stroke"]; ok {
		st, err := v.stroke()
		if err != nil {
			return fmt.Errorf("%s: text stroke: %w", cmd.Pos, err)
		}
		t.Stroke = st
	}
	if v, ok := props["shadow"]; ok {
		sh, err := v.shadow()
		if err != nil {
			return fmt.Errorf("%s: text shadow: %w", cmd.Pos, err)
		}
		t.Shadow = sh
	}
	if v, ok := props["padding"]; ok {
		in, err := v.insets()
		if err != nil {
			return fmt.Errorf("%s: text padding: %w", cmd.Pos, err)
		}
		t.Padding = in
	}
	if v, ok := props["background"]; ok {
		bg, err := v.textBackground()
		if err != nil {
			return fmt.Errorf("%s: text background: %w", cmd.Pos, err)
		}
		t.Background = bg
	}
	if v, ok := props["rotate"]; ok {
		t.Transform = &scene.Transform{Rotate: v.float()}
	}
	applyCommon(&t.Common, props)
	s.Overlays = append(s.Overlays, scene.Overlay{Kind: scene.KindText, Text: t})
	return nil
}

func lowerImage(s *scene.Scene, cmd *Command, props propMap) error {
	if cmd.Arg == nil {
		return fmt.Errorf("%s: image 命令缺少资源路径", cmd.Pos)
	}
	ov := &scene.ImageOverlay{
		Common: scene.Common{Type: scene.KindImage},
		Src:    string(*cmd.Arg),
	}
	if v, ok := props["box"]; ok {
		b, err := v.box()
		if err != nil {
			return fmt.Errorf("%s: image box: %w", cmd.Pos, err)
		}
		ov.Box = b
	}
	if v, ok := props["fit"]; ok {
		ov.Fit = scene.ParseFit(v.text())
	}
	applyCommon(&ov.Common, props)
	s.Overlays = append(s.Overlays, scene.Overlay{Kind: scene.KindImage, Image: ov})
	return nil
}

func lowerPath(s *scene.Scene, cmd *Command, props propMap) error {
	ov := &scene.PathOverlay{Common: scene.Common{Type: scene.KindPath}}
	if cmd.Arg != nil {
		ov.Paths = append(ov.Paths, string(*cmd.Arg))
	}
	if v, ok := props["d"]; ok {
		for _, item := range v.items() {
			if item.String != nil {
				ov.Paths = append(ov.Paths, string(*item.String))
			}
		}
	}
	if len(ov.Paths) == 0 {
		return fmt.Errorf("%s: path 命令缺少路径数据", cmd.Pos)
	}
	if v, ok := props["fill"]; ok {
		c, err := v.color()
		if err != nil {
			return fmt.Errorf("%s: path fill: %w", cmd.Pos, err)
		}
		ov.Fill = &c
	}
	if v, ok := props["stroke"]; ok {
		st, err := v.stroke()
		if err != nil {
			return fmt.Errorf("%s: path stroke: %w", cmd.Pos, err)
		}
		ov.Stroke = st
	}
	applyCommon(&ov.Common, props)
	s.Overlays = append(s.Overlays, scene.Overlay{Kind: scene.KindPath, Path: ov})
	return nil
}

// applyCommon 处理所有叠加层共享的 id/opacity/blend 属性。
func applyCommon(c *scene.Common, props propMap) {
	if v, ok := props["id"]; ok {
		c.ID = v.text()
	}
	if v, ok := props["opacity"]; ok {
		alpha := v.float()
		c.Opacity = &alpha
	}
	if v, ok := props["blend"]; ok {
		c.BlendMode = v.text()
	}
}

func effects(s *scene.Scene) *scene.Effects {
	if s.Canvas.Effects == nil {
		s.Canvas.Effects = &scene.Effects{}
	}
	return s.Canvas.Effects
}

type propMap map[string]*Value

// collectProps 把属性块收拢成 map，重复键报错。
func collectProps(cmd *Command) (propMap, error) {
	props := propMap{}
	if cmd.Block == nil {
		return props, nil
	}
	for _, p := range cmd.Block.Props {
		if _, dup := props[p.Key]; dup {
			return nil, fmt.Errorf("%s: 属性 %q 重复声明", p.Pos, p.Key)
		}
		props[p.Key] = p.Value
	}
	return props, nil
}

// text 返回字符串或标识符值的文本形式。
func (v *Value) text() string {
	switch {
	case v.String != nil:
		return string(*v.String)
	case v.Ident != nil:
		return *v.Ident
	case v.Number != nil:
		return *v.Number
	case v.Color != nil:
		return *v.Color
	}
	return ""
}

// float 把数字值解析为 float64，非数字返回 0。
func (v *Value) float() float64 {
	if v.Number == nil {
		return 0
	}
	f, err := strconv.ParseFloat(*v.Number, 64)
	if err != nil {
		return 0
	}
	return f
}

// items 返回数组元素；标量值视为单元素数组。
func (v *Value) items() []*Value {
	if len(v.Array) > 0 {
		return v.Array
	}
	return []*Value{v}
}

// floats 要求恰好 n 个数字元素。
func (v *Value) floats(n int) ([]float64, error) {
	items := v.items()
	if len(items) != n {
		return nil, fmt.Errorf("需要 %d 个数值，实际 %d 个", n, len(items))
	}
	out := make([]float64, n)
	for i, item := range items {
		if item.Number == nil {
			return nil, fmt.Errorf("第 %d 个元素不是数值", i+1)
		}
		out[i] = item.float()
	}
	return out, nil
}

func (v *Value) color() (scene.Color, error) {
	if v.Color == nil {
		return scene.Color{}, fmt.Errorf("需要颜色字面量，如 #1a2b3c")
	}
	return scene.ParseColor(*v.Color)
}

// box 解析 [x, y, width, height]。
func (v *Value) box() (scene.Box, error) {
	nums, err := v.floats(4)
	if err != nil {
		return scene.Box{}, err
	}
	return scene.Box{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}, nil
}

// stroke 解析 [颜色, 线宽]。
func (v *Value) stroke() (*scene.Stroke, error) {
	items := v.items()
	if len(items) != 2 || items[0].Color == nil || items[1].Number == nil {
		return nil, fmt.Errorf("stroke 需为 [颜色, 线宽]")
	}
	c, err := items[0].color()
	if err != nil {
		return nil, err
	}
	return &scene.Stroke{Color: c, Width: items[1].float()}, nil
}

// shadow 解析 [颜色, 模糊, 偏移x, 偏移y]。
func (v *Value) shadow() (*scene.Shadow, error) {
	items := v.items()
	if len(items) != 4 || items[0].Color == nil {
		return nil, fmt.Errorf("shadow 需为 [颜色, 模糊, 偏移x, 偏移y]")
	}
	c, err := items[0].color()
	if err != nil {
		return nil, err
	}
	return &scene.Shadow{
		Color:   c,
		Blur:    items[1].float(),
		OffsetX: items[2].float(),
		OffsetY: items[3].float(),
	}, nil
}

// insets 解析单个数字（四边等距）或 [上, 右, 下, 左]。
func (v *Value) insets() (scene.Insets, error) {
	if v.Number != nil {
		n := v.float()
		return scene.Insets{Top: n, Right: n, Bottom: n, Left: n}, nil
	}
	nums, err := v.floats(4)
	if err != nil {
		return scene.Insets{}, fmt.Errorf("padding 需为单个数字或 [上, 右, 下, 左]: %w", err)
	}
	return scene.Insets{Top: nums[0], Right: nums[1], Bottom: nums[2], Left: nums[3]}, nil
}

// textBackground 解析 颜色 或 [颜色, 圆角]。
func (v *Value) textBackground() (*scene.TextBackground, error) {
	if v.Color != nil {
		c, err := v.color()
		if err != nil {
			return nil, err
		}
		return &scene.TextBackground{Color: c}, nil
	}
	items := v.items()
	if len(items) != 2 || items[0].Color == nil {
		return nil, fmt.Errorf("background 需为颜色或 [颜色, 圆角]")
	}
	c, err := items[0].color()
	if err != nil {
		return nil, err
	}
	return &scene.TextBackground{Color: c, Radius: items[1].float()}, nil
}
