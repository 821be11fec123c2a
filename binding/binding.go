// Package binding 在渲染前把场景中的 ${path.to.value} 占位符替换为
// 外部数据里的值，用于同一模板批量生成不同文案的图。
// data 为空或路径不存在时保留原占位符，不报错。
package binding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Dario-Soria/Postty-sub002/scene"
)

var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Apply 遍历场景中所有可绑定字段并就地替换占位符。
// 目前覆盖文本层的内容与字体家族、图片层的资源路径。
func Apply(s *scene.Scene, data any) {
	if s == nil || data == nil {
		return
	}
	for i := range s.Overlays {
		switch ov := &s.Overlays[i]; ov.Kind {
		case scene.KindText:
			ov.Text.Text = Interpolate(ov.Text.Text, data)
			ov.Text.Font.Family = Interpolate(ov.Text.Font.Family, data)
		case scene.KindImage:
			ov.Image.Src = Interpolate(ov.Image.Src, data)
		}
	}
}

// Interpolate 将文本中的 ${path.to.value} 替换为 data 中的值。
// 路径支持点号层级与 [n] 下标，如 ${products[0].name}。
func Interpolate(text string, data any) string {
	if data == nil || !strings.Contains(text, "${") {
		return text
	}
	return exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-1])
		if path == "" {
			return match
		}
		if val, ok := lookup(data, path); ok {
			return fmt.Sprint(val)
		}
		return match
	})
}

// lookup 沿路径逐段下钻；任何一段缺失即失败。
func lookup(data any, path string) (any, bool) {
	current := data
	for _, segment := range strings.Split(path, ".") {
		name, indexes := splitIndexes(segment)
		if name != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[name]
			if !ok {
				return nil, false
			}
		}
		for _, idx := range indexes {
			arr, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		}
	}
	return current, true
}

// splitIndexes 把 "items[0][2]" 拆成名字与下标序列。
func splitIndexes(segment string) (string, []int) {
	open := strings.IndexByte(segment, '[')
	if open == -1 {
		return segment, nil
	}
	name := segment[:open]
	var indexes []int
	rest := segment[open:]
	for strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			break
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			break
		}
		indexes = append(indexes, n)
		rest = rest[end+1:]
	}
	return name, indexes
}
