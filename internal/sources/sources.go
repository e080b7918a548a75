// 包 sources 负责汇总成员名单：
// - JSON/TOML 字面量
// - 本地或远程文件（按扩展名识别 json/toml/yaml/csv）
// - 成员列表页（按 CSS 选择器抽取）
// 所有来源按上述顺序拼接为一个扁平列表，不做去重（由 ring.Verify 负责）。
package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"go-webring/internal/config"
	"go-webring/internal/fetch"
	"go-webring/internal/logx"
	"go-webring/internal/model"
)

// Load 按配置读取全部来源。
func Load(ctx context.Context, cl *fetch.Client, cfg *config.Config) ([]model.Site, error) {
	var all []model.Site
	for i, lit := range cfg.JSONLists {
		list, err := Parse([]byte(lit), "json")
		if err != nil {
			return nil, fmt.Errorf("parse JSON literal #%d: %w", i+1, err)
		}
		all = append(all, list...)
	}
	for i, lit := range cfg.TOMLLists {
		list, err := Parse([]byte(lit), "toml")
		if err != nil {
			return nil, fmt.Errorf("parse TOML literal #%d: %w", i+1, err)
		}
		all = append(all, list...)
	}
	for _, path := range cfg.ListPaths {
		data, err := Acquire(ctx, cl, path)
		if err != nil {
			return nil, err
		}
		list, err := Parse(data, FormatOf(path))
		if err != nil {
			return nil, fmt.Errorf("parse list %s: %w", path, err)
		}
		logx.Debugf("%s 读取到 %d 个站点", path, len(list))
		all = append(all, list...)
	}
	for _, ps := range cfg.PageSources {
		list, err := ParsePage(ctx, cl, ps)
		if err != nil {
			return nil, err
		}
		logx.Infof("%s 解析到 %d 个站点", ps.URL, len(list))
		all = append(all, list...)
	}
	return all, nil
}

// Acquire 读取本地文件，或在 path 为 http(s) URL 时下载。
func Acquire(ctx context.Context, cl *fetch.Client, path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return cl.GetBytes(ctx, path)
	}
	if path == "" {
		return nil, errors.New("empty list path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read list %s: %w", path, err)
	}
	return b, nil
}

// FormatOf 根据扩展名推断格式，缺省为 json。
func FormatOf(path string) string {
	p := path
	if i := strings.IndexAny(p, "?#"); i >= 0 && strings.Contains(p, "://") {
		p = p[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(p)), ".")
	switch ext {
	case "":
		return "json"
	case "yml":
		return "yaml"
	default:
		return ext
	}
}

// Parse 将名单数据按格式反序列化。
func Parse(data []byte, format string) ([]model.Site, error) {
	switch format {
	case "json":
		var list []model.Site
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	case "toml":
		var doc struct {
			Sites []model.Site `toml:"sites"`
		}
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, err
		}
		return doc.Sites, nil
	case "yaml":
		var list []model.Site
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	case "csv":
		return parseCSV(data)
	default:
		return nil, fmt.Errorf("unsupported list format %q", format)
	}
}

// parseCSV 读取带表头的 CSV；列名不区分大小写，未知列忽略。
func parseCSV(data []byte) ([]model.Site, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["url"]; !ok {
		return nil, errors.New("csv header has no url column")
	}
	var out []model.Site
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", line, err)
		}
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		out = append(out, model.Site{
			Slug:  get("slug"),
			Name:  get("name"),
			About: get("about"),
			URL:   get("url"),
			RSS:   get("rss"),
			Owner: get("owner"),
		})
	}
	return out, nil
}
