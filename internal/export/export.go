// 包 export 负责将构建完成的环写为 {ring_name}.json，供外部脚本或前端直接读取。
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go-webring/internal/model"
)

// Build 根据环与审计结果组装导出结构并计算统计。
func Build(name, baseURL string, rg *model.Ring, now time.Time) model.Export {
	st := model.Stats{
		SitesInRing: rg.Len(),
		SitesFailed: len(rg.Failed),
		UpdatedAt:   now,
	}
	st.SitesTotal = st.SitesInRing + st.SitesFailed
	return model.Export{
		Name:    name,
		BaseURL: baseURL,
		Stats:   st,
		Ring:    rg.Entries,
		Failed:  rg.Failed,
	}
}

// ToJSON 将导出结构写入 JSON 文件（带缩进格式）。
func ToJSON(out model.Export, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}
