// Package compositor 把场景装配成可渲染的执行计划：适配背景、叠加效果、
// 为每个文本层解析字体并排版，再交给具体后端绘制。后端只消费 Plan，
// 两个后端（栅格 canvas 与矢量 SVG）共享同一份 LaidOutText 契约。
package compositor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Dario-Soria/Postty-sub002/effects"
	"github.com/Dario-Soria/Postty-sub002/fontfetch"
	"github.com/Dario-Soria/Postty-sub002/fontkit"
	"github.com/Dario-Soria/Postty-sub002/layout"
	"github.com/Dario-Soria/Postty-sub002/logging"
	"github.com/Dario-Soria/Postty-sub002/scene"
)

var (
	// ErrEmptyScene 表示场景缺失或画布尺寸非法，属于结构性致命错误。
	ErrEmptyScene = errors.New("场景为空或画布尺寸非法")
	// ErrBadBackground 表示背景字节无法解码，该次渲染失败，不影响共享缓存。
	ErrBadBackground = errors.New("背景图片不可解码")
)

// Backend 由渲染后端实现。实现方必须严格按 Items 的数组顺序合成图层。
type Backend interface {
	Render(plan *Plan) ([]byte, error)
}

// Plan 是一次渲染的全部输入：已适配并叠好效果的背景，加上逐层条目。
type Plan struct {
	Scene *scene.Scene
	Base  *image.NRGBA
	Items []Item
}

// Item 对应一个叠加层。文本层带排版结果与字体度量；图片层带已解码资源。
// 资源缺失时相应指针为空，后端将该层视为空操作。
type Item struct {
	Overlay *scene.Overlay
	Text    *layout.LaidOutText
	Metrics *fontkit.Metrics
	Image   image.Image
}

// Options 配置 Compositor。
type Options struct {
	FontsDir string
	BaseDir  string // 图片资源的根目录，空则只允许绝对路径与 data: URI
	Registry *fontkit.Registry
	Fetcher  *fontfetch.Fetcher // 可选的远端字体回退
	Logger   *slog.Logger
}

// Compositor 持有跨请求共享的缓存（字体注册表、度量缓存）。
// 单个实例可并发服务多次渲染。
type Compositor struct {
	fontsDir string
	baseDir  string
	registry *fontkit.Registry
	fetcher  *fontfetch.Fetcher
	logger   *slog.Logger

	metricsMu    sync.Mutex
	metricsCache map[string]*fontkit.Metrics
}

// New 创建 Compositor。Registry 为空时内部新建。
func New(opts Options) *Compositor {
	c := &Compositor{
		fontsDir:     opts.FontsDir,
		baseDir:      opts.BaseDir,
		registry:     opts.Registry,
		fetcher:      opts.Fetcher,
		logger:       opts.Logger,
		metricsCache: make(map[string]*fontkit.Metrics),
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.registry == nil {
		c.registry = fontkit.NewRegistry(c.logger)
	}
	return c
}

// Render 装配计划并交给后端，返回编码后的图像字节。
// 只有背景解码失败与场景结构缺失会返回错误，其余问题均降级并告警。
func (c *Compositor) Render(ctx context.Context, sc *scene.Scene, background []byte, backend Backend) ([]byte, error) {
	plan, err := c.BuildPlan(ctx, sc, background)
	if err != nil {
		return nil, err
	}
	return backend.Render(plan)
}

// BuildPlan 完成后端无关的全部工作：背景适配、效果、字体解析与排版。
func (c *Compositor) BuildPlan(ctx context.Context, sc *scene.Scene, background []byte) (*Plan, error) {
	if sc == nil || sc.Canvas.Width <= 0 || sc.Canvas.Height <= 0 {
		return nil, ErrEmptyScene
	}
	src, _, err := image.Decode(bytes.NewReader(background))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBackground, err)
	}

	base := FitInto(src, sc.Canvas.Width, sc.Canvas.Height, sc.Canvas.BackgroundFit, sc.Canvas.BackgroundPosition)
	c.applyEffects(base, sc)

	items := make([]Item, len(sc.Overlays))
	for i := range sc.Overlays {
		ov := &sc.Overlays[i]
		items[i] = Item{Overlay: ov}
		switch ov.Kind {
		case scene.KindText:
			m := c.resolveMetrics(ctx, ov.Text.Font)
			items[i].Metrics = m
			items[i].Text = layout.Layout(ov.Text, m)
		case scene.KindImage:
			items[i].Image = c.loadImage(ov.Image.Src)
		}
	}
	return &Plan{Scene: sc, Base: base, Items: items}, nil
}

// applyEffects 按固定顺序叠加暗角与噪点。噪点种子取自场景哈希，
// 同一场景两次渲染逐字节一致。
func (c *Compositor) applyEffects(base *image.NRGBA, sc *scene.Scene) {
	fx := sc.Canvas.Effects
	if fx == nil {
		return
	}
	if fx.Vignette != nil {
		layer := effects.Vignette(sc.Canvas.Width, sc.Canvas.Height, fx.Vignette)
		draw.Draw(base, base.Bounds(), layer, image.Point{}, draw.Over)
	}
	if fx.Grain != nil {
		layer := effects.Grain(sc.Canvas.Width, sc.Canvas.Height, fx.Grain, sc.Seed())
		draw.Draw(base, base.Bounds(), layer, image.Point{}, draw.Over)
	}
}

// resolveMetrics 按 注册表 → 远端获取 → 目录内通用回退 的顺序解析字体。
// 全部落空返回 nil，排版退化为估算宽度，渲染继续。
func (c *Compositor) resolveMetrics(ctx context.Context, spec scene.FontSpec) *fontkit.Metrics {
	if path, ok := c.registry.TryResolve(c.fontsDir, spec.Family, spec.Weight, spec.Style); ok {
		return c.metricsFor(path)
	}
	if c.fetcher != nil {
		if path := c.fetcher.EnsureLocal(ctx, c.fontsDir, spec.Family, spec.Weight, spec.Style); path != "" {
			return c.metricsFor(path)
		}
	}
	if path, ok := c.registry.ResolveAny(c.fontsDir, spec.Weight, spec.Style); ok {
		c.logger.Warn("字体家族未命中，使用目录内通用回退",
			"family", spec.Family, "fallback", path)
		return c.metricsFor(path)
	}
	c.logger.Warn("没有任何可用字体，文本将按估算宽度排版", "family", spec.Family)
	return nil
}

// metricsFor 按路径缓存字体度量，坏文件缓存为 nil 避免重复解析。
func (c *Compositor) metricsFor(path string) *fontkit.Metrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	if m, ok := c.metricsCache[path]; ok {
		return m
	}
	m, err := fontkit.LoadMetrics(path)
	if err != nil {
		c.logger.Warn("字体度量解析失败", "path", path, "err", err)
		m = nil
	}
	c.metricsCache[path] = m
	return m
}

// loadImage 解码图片资源：data: URI 或（相对 BaseDir 的）文件路径。
// 任何失败返回 nil，该层成为空操作。
func (c *Compositor) loadImage(src string) image.Image {
	if src == "" {
		return nil
	}
	var data []byte
	if strings.HasPrefix(src, "data:") {
		idx := strings.Index(src, "base64,")
		if idx < 0 {
			c.logger.Warn("不支持的 data URI 图片", "src", truncate(src, 48))
			return nil
		}
		decoded, err := base64.StdEncoding.DecodeString(src[idx+len("base64,"):])
		if err != nil {
			c.logger.Warn("data URI 解码失败", "err", err)
			return nil
		}
		data = decoded
	} else {
		path := src
		if !filepath.IsAbs(path) {
			if c.baseDir == "" {
				c.logger.Warn("未配置资源目录，忽略相对路径图片", "src", src)
				return nil
			}
			path = filepath.Join(c.baseDir, path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("读取图片资源失败", "src", src, "err", err)
			return nil
		}
		data = b
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.logger.Warn("解码图片资源失败", "src", truncate(src, 48), "err", err)
		return nil
	}
	return img
}

// WritePlanJSON 把计划中每层的排版结果输出为 JSON，用于调试与可视化。
func WritePlanJSON(plan *Plan, path string) error {
	type entry struct {
		Index int                 `json:"index"`
		Kind  scene.OverlayKind   `json:"kind"`
		ID    string              `json:"id,omitempty"`
		Text  *layout.LaidOutText `json:"text,omitempty"`
	}
	entries := make([]entry, 0, len(plan.Items))
	for i, item := range plan.Items {
		e := entry{Index: i, Kind: item.Overlay.Kind, Text: item.Text}
		if c := item.Overlay.Common(); c != nil {
			e.ID = c.ID
		}
		entries = append(entries, e)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
