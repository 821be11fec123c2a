package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Dario-Soria/Postty-sub002/binding"
	"github.com/Dario-Soria/Postty-sub002/compositor"
	"github.com/Dario-Soria/Postty-sub002/dsl"
	"github.com/Dario-Soria/Postty-sub002/fontfetch"
	canvasrenderer "github.com/Dario-Soria/Postty-sub002/renderer/canvas"
	svgrenderer "github.com/Dario-Soria/Postty-sub002/renderer/svg"
	"github.com/Dario-Soria/Postty-sub002/scene"
)

func main() {
	scenePath := flag.String("scene", "examples/promo.json", "场景文件路径（.json 或 .scene）")
	background := flag.String("background", "", "背景图片路径")
	output := flag.String("out", "output/promo.png", "输出文件路径")
	fontsDir := flag.String("fonts", "fonts", "本地字体目录")
	backendName := flag.String("backend", "canvas", "渲染后端：canvas 或 svg")
	debug := flag.String("debug", "", "排版调试 JSON 输出路径")
	dataJSON := flag.String("data", "", "绑定到场景的 JSON 数据")
	catalogURL := flag.String("catalog", "", "远端字体目录地址，空则用默认目录")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var inputData any
	if *dataJSON != "" {
		if err := json.Unmarshal([]byte(*dataJSON), &inputData); err != nil {
			log.Fatalf("解析 data JSON 失败: %v", err)
		}
	}

	if err := run(*scenePath, *background, *output, *fontsDir, *backendName, *debug, *catalogURL, inputData, logger); err != nil {
		log.Fatalf("生成图片失败: %v", err)
	}
	fmt.Printf("已生成图片：%s\n", *output)
}

// run 串联场景解析、数据绑定、计划装配与渲染。
func run(scenePath, backgroundPath, outputPath, fontsDir, backendName, debugPath, catalogURL string, data any, logger *slog.Logger) error {
	sc, err := loadScene(scenePath)
	if err != nil {
		return err
	}
	binding.Apply(sc, data)

	if backgroundPath == "" {
		return fmt.Errorf("缺少 -background 背景图片")
	}
	bg, err := os.ReadFile(backgroundPath)
	if err != nil {
		return fmt.Errorf("读取背景图片失败: %w", err)
	}

	comp := compositor.New(compositor.Options{
		FontsDir: fontsDir,
		BaseDir:  filepath.Dir(scenePath),
		Fetcher:  newFetcher(catalogURL, logger),
		Logger:   logger,
	})

	plan, err := comp.BuildPlan(context.Background(), sc, bg)
	if err != nil {
		return fmt.Errorf("装配渲染计划失败: %w", err)
	}

	if debugPath != "" {
		if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
			return fmt.Errorf("创建调试目录失败: %w", err)
		}
		if err := compositor.WritePlanJSON(plan, debugPath); err != nil {
			return fmt.Errorf("输出调试 JSON 失败: %w", err)
		}
	}

	backend, err := pickBackend(backendName, logger)
	if err != nil {
		return err
	}
	out, err := backend.Render(plan)
	if err != nil {
		return fmt.Errorf("渲染失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	return nil
}

// loadScene 按扩展名选择解析器：.scene 走 DSL，其余按 JSON 处理。
func loadScene(path string) (*scene.Scene, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开场景文件 %s: %w", path, err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".scene") {
		sc, err := dsl.ParseScene(file)
		if err != nil {
			return nil, fmt.Errorf("解析场景 DSL 失败: %w", err)
		}
		return sc, nil
	}
	return scene.Decode(file)
}

func pickBackend(name string, logger *slog.Logger) (compositor.Backend, error) {
	switch name {
	case "canvas":
		return canvasrenderer.NewRenderer(logger), nil
	case "svg":
		return svgrenderer.NewRenderer(logger), nil
	default:
		return nil, fmt.Errorf("未知后端 %q，支持 canvas 与 svg", name)
	}
}

// newFetcher 在配置了 API key 时启用远端字体回退。
func newFetcher(catalogURL string, logger *slog.Logger) *fontfetch.Fetcher {
	apiKey := os.Getenv("POSTTY_FONT_CATALOG_KEY")
	if apiKey == "" {
		return nil
	}
	return fontfetch.New(fontfetch.Options{
		CatalogURL: catalogURL,
		APIKey:     apiKey,
		Logger:     logger,
	})
}
