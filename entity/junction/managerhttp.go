package junction

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
)

type trafficLightResponse struct {
	JunctionID       int32     `json:"junction_id"`
	Type             string    `json:"type"`
	PhaseIDs         []int32   `json:"phase_ids"`
	Durations        []float64 `json:"durations"`
	Interphase       []bool    `json:"interphase"`
	CycleTime        float64   `json:"cycle_time"`
	PhaseID          int32     `json:"phase_id"`
	TimeRemaining    float64   `json:"time_remaining"`
	TimeOfLastChange float64   `json:"time_of_last_change"`
}

// Register 将Junction查询接口注册到mux
// 功能：GET /v1/junctions/{id}/traffic-light 返回指定路口当前执行的信控方案与相位
// 参数：mux-HTTP路由，lock-读取仿真状态时持有的读锁
func (m *JunctionManager) Register(mux *http.ServeMux, lock sync.Locker) {
	mux.HandleFunc("GET /v1/junctions/{id}/traffic-light", func(w http.ResponseWriter, r *http.Request) {
		lock.Lock()
		defer lock.Unlock()
		m.getTrafficLight(w, r)
	})
}

func (m *JunctionManager) getTrafficLight(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid junction id")
		return
	}
	j, ok := m.data[int32(id)]
	if !ok {
		writeError(w, http.StatusNotFound, "junction id does not exist")
		return
	}
	if j.trafficLight == nil {
		writeError(w, http.StatusConflict, ErrDisabledTrafficLight.Error())
		return
	}
	params := j.trafficLight.Parameters()
	writeJSON(w, http.StatusOK, trafficLightResponse{
		JunctionID:       j.id,
		Type:             params.Type.String(),
		PhaseIDs:         params.PhaseIDs,
		Durations:        params.Durations,
		Interphase:       params.Interphase,
		CycleTime:        params.CycleTime(),
		PhaseID:          j.trafficLight.CurrentPhaseID(),
		TimeRemaining:    j.trafficLight.RemainingTime(),
		TimeOfLastChange: j.trafficLight.TimeOfLastChange(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
