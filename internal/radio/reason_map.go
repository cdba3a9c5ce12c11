package radio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReasonMap 回执结果码 -> 上报原因词汇表
type ReasonMap struct {
	Map map[int]string `yaml:"map"`
}

// DefaultReasonMap 返回默认的失败原因映射
func DefaultReasonMap() *ReasonMap {
	return &ReasonMap{
		Map: map[int]string{
			int(ResultGenericFailure): "GENERIC_FAILURE",
			int(ResultNoService):      "NO_SERVICE",
			int(ResultNullPDU):        "NULL_PDU",
			int(ResultRadioOff):       "RADIO_OFF",
			int(ResultUnknown):        "UNKNOWN",
		},
	}
}

// LoadReasonMap 从 YAML 文件加载原因映射（部署侧可覆盖词汇）
func LoadReasonMap(path string) (*ReasonMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reason map: %w", err)
	}
	var m ReasonMap
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal reason map: %w", err)
	}
	if m.Map == nil {
		m.Map = make(map[int]string)
	}
	return &m, nil
}

// Reason 返回结果码的上报原因，未登记的码一律 UNKNOWN
func (m *ReasonMap) Reason(r Result) string {
	if reason, ok := m.Map[int(r)]; ok {
		return reason
	}
	return "UNKNOWN"
}
