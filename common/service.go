package common

import (
	"fmt"
	"sort"
	"sync"
)

// ServiceState 服务的生命周期状态
type ServiceState uint32

// 服务状态
const (
	NEW ServiceState = iota
	INITED
	STARTING
	RUNNING
	STOPPING
	TERMINATED
	FAILED
)

var serviceStateNames = [...]string{"NEW", "INITED", "STARTING", "RUNNING", "STOPPING", "TERMINATED", "FAILED"}

func (p ServiceState) String() string {
	if int(p) < len(serviceStateNames) {
		return serviceStateNames[p]
	}
	return fmt.Sprintf("ServiceState(%d)", uint32(p))
}

// CanTransit 状态from能否转移到to. 每个状态只能前进,TERMINATED和FAILED是终态,
// STOPPING之前的任何状态都可以直接进入TERMINATED
func CanTransit(from, to ServiceState) bool {
	switch from {
	case TERMINATED, FAILED:
		return false
	case STOPPING:
		return to == TERMINATED || to == FAILED
	}
	return to == from+1 || to == TERMINATED || to == FAILED
}

// Service 有生命周期的服务,由Services按次序初始化、启动和停止
type Service interface {
	// Name 服务名称
	Name() string
	// Init 初始化,失败时返回原因
	Init() error
	// Start 启动服务
	Start() bool
	// Stop 停止服务并释放资源
	Stop() bool
	GetStartOrder() int
	GetStopOrder() int
	// State 服务当前的状态
	State() ServiceState
	setState(newState ServiceState) bool
}

// ServiceInit 初始化服务,已经初始化的服务直接跳过
func ServiceInit(service Service) bool {
	name := ServiceName(service)
	if service.State() == INITED {
		Infof("%s has been inited,skip", name)
		return true
	}
	if err := service.Init(); err != nil {
		Errorf("init %s fail,err:%v", name, err)
		service.setState(FAILED)
		return false
	}
	if !service.setState(INITED) {
		return false
	}
	Debugf("%s inited", name)
	return true
}

// ServiceStart 启动已经初始化的服务
func ServiceStart(service Service) bool {
	name := ServiceName(service)
	if !service.setState(STARTING) {
		return false
	}
	if !service.Start() {
		Errorf("start %s fail", name)
		service.setState(FAILED)
		return false
	}
	if !service.setState(RUNNING) {
		return false
	}
	Debugf("%s running", name)
	return true
}

// ServiceStop 停止服务. 未初始化或已经停止的服务直接跳过,失败的服务仍会调用Stop以释放资源
func ServiceStop(service Service) bool {
	name := ServiceName(service)
	switch state := service.State(); state {
	case NEW, TERMINATED:
		Debugf("%s is %s,skip stop", name, state)
		return true
	case FAILED:
		return service.Stop()
	case RUNNING:
		service.setState(STOPPING)
	}
	if !service.Stop() {
		Errorf("stop %s fail", name)
		service.setState(FAILED)
		return false
	}
	service.setState(TERMINATED)
	Debugf("%s terminated", name)
	return true
}

// BaseService 嵌入到具体的服务中,提供名称、次序和状态
type BaseService struct {
	SName string //服务的名称
	Order int    //启动次序,停止时反序

	mu    sync.RWMutex
	state ServiceState
}

// Name implements Service.Name
func (p *BaseService) Name() string {
	return p.SName
}

// Init implements Service.Init
func (p *BaseService) Init() error {
	return nil
}

// Start implements Service.Start
func (p *BaseService) Start() bool {
	return true
}

// Stop implements Service.Stop
func (p *BaseService) Stop() bool {
	return true
}

// GetStartOrder 次序小的先启动
func (p *BaseService) GetStartOrder() int {
	return p.Order
}

// GetStopOrder 先启动的后停止
func (p *BaseService) GetStopOrder() int {
	return -p.Order
}

// State implements Service.State
func (p *BaseService) State() ServiceState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *BaseService) setState(newState ServiceState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !CanTransit(p.state, newState) {
		Criticalf("Invalid state transfer %s->%s,%s", p.state, newState, p.Name())
		return false
	}
	p.state = newState
	return true
}

// ServiceName 服务的类型和名称,用于日志
func ServiceName(service Service) string {
	name := fmt.Sprintf("%T", service)
	if service.Name() != "" {
		name += "#" + service.Name()
	}
	return name
}

// Services 按启动或停止次序排好的一组服务
type Services struct {
	sorted []Service
}

// NewServices 按启动次序(start为true)或停止次序排序services
func NewServices(services []Service, start bool) *Services {
	sorted := append([]Service(nil), services...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if start {
			return sorted[i].GetStartOrder() < sorted[j].GetStartOrder()
		}
		return sorted[i].GetStopOrder() < sorted[j].GetStopOrder()
	})
	return &Services{sorted: sorted}
}

// Init 依次初始化,遇到失败即返回false
func (p *Services) Init() bool {
	for _, service := range p.sorted {
		if !ServiceInit(service) {
			return false
		}
	}
	return true
}

// Start 依次启动,遇到失败即返回false
func (p *Services) Start() bool {
	for _, service := range p.sorted {
		if !ServiceStart(service) {
			return false
		}
	}
	return true
}

// Stop 停止所有的服务,某个服务停止失败时继续停止其它的服务,全部成功时返回true
func (p *Services) Stop() bool {
	ok := true
	for _, service := range p.sorted {
		if !ServiceStop(service) {
			Warnf("stop %s fail", ServiceName(service))
			ok = false
		}
	}
	return ok
}

// StartServices 按启动次序初始化并启动services,返回按停止次序排好的集合.
// 任何一个失败时已经初始化的服务会被停止
func StartServices(services []Service) (*Services, error) {
	starting, stopping := NewServices(services, true), NewServices(services, false)
	if starting.Init() && starting.Start() {
		return stopping, nil
	}
	stopping.Stop()
	return nil, fmt.Errorf("start %d services fail", len(services))
}
