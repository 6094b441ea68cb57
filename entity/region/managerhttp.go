package region

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type corridorsResponse struct {
	RunID     string    `json:"run_id"`
	Time      float64   `json:"time"`
	Corridors [][]int32 `json:"corridors"`
}

type nodeResponse struct {
	NodeID          int32   `json:"node_id"`
	PartOfPSS       bool    `json:"part_of_pss"`
	Begin           bool    `json:"begin"`
	End             bool    `json:"end"`
	Predecessor     int32   `json:"predecessor"`
	Successor       int32   `json:"successor"`
	Successors      []int32 `json:"registered_successors"`
	AgreedCycleTime int     `json:"agreed_cycle_time"`
	Offset          int     `json:"offset"`
	SyncStart       int     `json:"sync_start"`
	Description     string  `json:"description"`
}

// Register 将绿波协调查询接口注册到mux
// 功能：GET /v1/corridors 返回已建立的走廊，GET /v1/nodes/{id} 返回路口的协商状态，
// GET /healthz 用于存活检查，GET /metrics 输出Prometheus指标
// 参数：mux-HTTP路由，lock-读取仿真状态时持有的读锁
func (m *DPSSManager) Register(mux *http.ServeMux, lock sync.Locker) {
	mux.HandleFunc("GET /v1/corridors", func(w http.ResponseWriter, r *http.Request) {
		lock.Lock()
		defer lock.Unlock()
		writeJSON(w, http.StatusOK, corridorsResponse{
			RunID:     m.net.RunID(),
			Time:      m.ctx.Clock().T,
			Corridors: m.EstablishedCorridors(),
		})
	})
	mux.HandleFunc("GET /v1/nodes/{id}", func(w http.ResponseWriter, r *http.Request) {
		lock.Lock()
		defer lock.Unlock()
		m.getNode(w, r)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (m *DPSSManager) getNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}
	n, ok := m.net.Node(int32(id))
	if !ok {
		writeError(w, http.StatusNotFound, "node id does not exist")
		return
	}
	writeJSON(w, http.StatusOK, nodeResponse{
		NodeID:          n.ID(),
		PartOfPSS:       n.PartOfPSS(),
		Begin:           n.BeginOfPSS(),
		End:             n.EndOfPSS(),
		Predecessor:     n.Predecessor(),
		Successor:       n.PrimarySuccessor(),
		Successors:      n.SuccessorList(),
		AgreedCycleTime: n.AgreedCycleTime(),
		Offset:          n.Offset(),
		SyncStart:       n.SyncStart(),
		Description:     n.Description(),
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
