package scene

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color 为 8 位 RGBA 颜色，JSON 形态是 "#rgb/#rrggbb/#rrggbbaa" 或 "rgba(r,g,b,a)"。
type Color struct {
	R, G, B, A uint8
}

// RGBA8 返回等价的 color.RGBA（非预乘语义由调用方处理）。
func (c Color) RGBA8() color.RGBA { return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A} }

// Scaled 返回按 alpha 比例整体削弱后的颜色，用于图层不透明度。
func (c Color) Scaled(alpha float64) Color {
	if alpha >= 1 {
		return c
	}
	if alpha < 0 {
		alpha = 0
	}
	out := c
	out.A = uint8(float64(c.A)*alpha + 0.5)
	return out
}

// Hex 输出 #rrggbb 或带 alpha 的 #rrggbbaa。
func (c Color) Hex() string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// MarshalJSON 统一序列化为十六进制写法，保证场景哈希的规范形态。
func (c Color) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.Hex())), nil
}

// UnmarshalJSON 解析两种颜色写法。
func (c *Color) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("颜色需为字符串: %s", string(data))
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor 解析 "#rgb"、"#rrggbb"、"#rrggbbaa" 与 "rgba(r,g,b,a)"。
func ParseColor(s string) (Color, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return Color{}, fmt.Errorf("颜色为空")
	}
	if strings.HasPrefix(v, "#") {
		return parseHexColor(v)
	}
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "rgba(") || strings.HasPrefix(lower, "rgb(") {
		return parseRGBAFunc(lower)
	}
	return Color{}, fmt.Errorf("无法识别的颜色 %q", s)
}

func parseHexColor(v string) (Color, error) {
	hex := v[1:]
	switch len(hex) {
	case 3:
		var out [3]uint8
		for i := 0; i < 3; i++ {
			n, err := strconv.ParseUint(string(hex[i]), 16, 8)
			if err != nil {
				return Color{}, fmt.Errorf("无法识别的颜色 %q", v)
			}
			out[i] = uint8(n*16 + n)
		}
		return Color{R: out[0], G: out[1], B: out[2], A: 0xff}, nil
	case 6, 8:
		var out [4]uint8
		out[3] = 0xff
		for i := 0; i*2 < len(hex); i++ {
			n, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
			if err != nil {
				return Color{}, fmt.Errorf("无法识别的颜色 %q", v)
			}
			out[i] = uint8(n)
		}
		return Color{R: out[0], G: out[1], B: out[2], A: out[3]}, nil
	default:
		return Color{}, fmt.Errorf("无法识别的颜色 %q", v)
	}
}

func parseRGBAFunc(v string) (Color, error) {
	open := strings.IndexByte(v, '(')
	end := strings.IndexByte(v, ')')
	if open < 0 || end < open {
		return Color{}, fmt.Errorf("无法识别的颜色 %q", v)
	}
	parts := strings.Split(v[open+1:end], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, fmt.Errorf("rgba 需要 3 或 4 个分量: %q", v)
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return Color{}, fmt.Errorf("rgba 分量越界: %q", v)
		}
		ch[i] = uint8(n)
	}
	a := uint8(0xff)
	if len(parts) == 4 {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || f < 0 || f > 1 {
			return Color{}, fmt.Errorf("rgba alpha 需在 [0,1]: %q", v)
		}
		a = uint8(f*255 + 0.5)
	}
	return Color{R: ch[0], G: ch[1], B: ch[2], A: a}, nil
}
