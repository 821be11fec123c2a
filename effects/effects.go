// Package effects 生成程序化背景效果层：径向暗角与确定性噪点。
// 两者都返回可直接 over 合成的 NRGBA 图层。
package effects

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/Dario-Soria/Postty-sub002/scene"
)

// grainScale 为噪点低清缓冲相对画布的缩小倍数，放大后保留颗粒感。
const grainScale = 4

// Vignette 生成径向渐变层：中心完全透明，向边缘渐变为 v.Color，
// 边缘 alpha 由 strength 缩放。radius 为相对画布短边的比例，
// 渐变从 radius*短边/2 处开始，到角落处达到最大。
func Vignette(width, height int, v *scene.Vignette) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	cx := float64(width) / 2
	cy := float64(height) / 2
	shorter := math.Min(float64(width), float64(height))
	inner := v.Radius * shorter / 2
	corner := math.Hypot(cx, cy)
	if corner <= inner {
		corner = inner + 1
	}
	strength := clamp01(v.Strength)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dist := math.Hypot(float64(x)-cx, float64(y)-cy)
			t := clamp01((dist - inner) / (corner - inner))
			a := uint8(t*strength*float64(v.Color.A) + 0.5)
			i := img.PixOffset(x, y)
			img.Pix[i+0] = v.Color.R
			img.Pix[i+1] = v.Color.G
			img.Pix[i+2] = v.Color.B
			img.Pix[i+3] = a
		}
	}
	return img
}

// Grain 生成确定性噪点层。同一 (尺寸, 参数, 种子) 必然得到同一字节序列：
// xorshift32 发生器驱动低清灰度缓冲，邻近插值放大到画布尺寸，
// 再以 opacity 作为整层 alpha。
func Grain(width, height int, g *scene.Grain, seed uint32) *image.NRGBA {
	lowW := max(1, width/grainScale)
	lowH := max(1, height/grainScale)
	low := image.NewNRGBA(image.Rect(0, 0, lowW, lowH))

	rng := newXorshift32(seed)
	amount := clamp01(g.Amount)
	alpha := uint8(clamp01(g.Opacity)*255 + 0.5)
	for y := 0; y < lowH; y++ {
		for x := 0; x < lowW; x++ {
			// [-1,1] 区间的噪声，以中灰为基准按 amount 缩放
			n := (float64(rng.next())/float64(math.MaxUint32))*2 - 1
			v := 128 + n*127*amount
			gray := uint8(math.Round(clampf(v, 0, 255)))
			i := low.PixOffset(x, y)
			low.Pix[i+0] = gray
			low.Pix[i+1] = gray
			low.Pix[i+2] = gray
			low.Pix[i+3] = alpha
		}
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), low, low.Bounds(), xdraw.Src, nil)
	return out
}

// xorshift32 是最小的确定性伪随机发生器，只用于噪点，不做统计保证。
type xorshift32 struct {
	state uint32
}

func newXorshift32(seed uint32) *xorshift32 {
	if seed == 0 {
		seed = 1 // 全零状态会卡死
	}
	return &xorshift32{state: seed}
}

func (x *xorshift32) next() uint32 {
	v := x.state
	v ^= v << 13
	v ^= v >> 17
	v ^= v << 5
	x.state = v
	return v
}

func clamp01(v float64) float64 { return clampf(v, 0, 1) }

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
