package clock

import (
	"encoding/json"
	"net/http"
)

type nowResponse struct {
	T    float64 `json:"t"`
	Step int32   `json:"step"`
	Time string  `json:"time"`
}

// Register 将时钟查询接口注册到mux
// 功能：GET /v1/clock 返回当前仿真时间
func (c *Clock) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/clock", c.handleNow)
}

func (c *Clock) handleNow(w http.ResponseWriter, _ *http.Request) {
	t, step := c.Now()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(nowResponse{T: t, Step: step, Time: c.String()}); err != nil {
		log.Debugf("write clock response: %v", err)
	}
}
