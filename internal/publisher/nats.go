package publisher

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"metro-simulator/internal/metro"
)

const DefaultSubjectPrefix = "metro.vehicles"

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, subjectPrefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("metro-simulator"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected to %s", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	if strings.TrimSpace(subjectPrefix) == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: subjectPrefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// FrameMessage is the payload published for one line on every frame. An
// empty Vehicles list tells consumers the line has no vehicle in service.
type FrameMessage struct {
	LineID    string           `json:"lineId"`
	Timestamp time.Time        `json:"timestamp"`
	Vehicles  []VehicleMessage `json:"vehicles"`
}

type VehicleMessage struct {
	ID          string  `json:"id"`
	Direction   string  `json:"direction"`
	Color       string  `json:"color"`
	Lon         float64 `json:"lon"`
	Lat         float64 `json:"lat"`
	Bearing     float64 `json:"bearing"`
	FromStation string  `json:"fromStation"`
	ToStation   string  `json:"toStation"`
	Dwelling    bool    `json:"dwelling"`
	// RemainingMinutes is the time left until the vehicle departs its
	// current segment's end station.
	RemainingMinutes float64 `json:"remainingMinutes"`
	Caption          string  `json:"caption,omitempty"`
}

func NewFrameMessage(lineID string, at time.Time, vehicles []metro.Vehicle) FrameMessage {
	msg := FrameMessage{LineID: lineID, Timestamp: at, Vehicles: make([]VehicleMessage, 0, len(vehicles))}
	for _, v := range vehicles {
		vm := VehicleMessage{
			ID:               v.ID,
			Direction:        v.Label,
			Color:            v.Color,
			Lon:              v.Position[0],
			Lat:              v.Position[1],
			Bearing:          v.Bearing,
			FromStation:      v.FromStation,
			ToStation:        v.ToStation,
			Dwelling:         v.Dwelling,
			RemainingMinutes: v.RemainingMinutes,
		}
		if v.ShowLabel {
			vm.Caption = v.Caption
		}
		msg.Vehicles = append(msg.Vehicles, vm)
	}
	return msg
}

// PublishVehicles publishes one line's frame on <prefix>.<line>.
func (p *NATSPublisher) PublishVehicles(lineID string, at time.Time, vehicles []metro.Vehicle) error {
	subject := Subject(p.prefix, lineID)
	b, err := json.Marshal(NewFrameMessage(lineID, at, vehicles))
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s vehicles=%d", subject, len(vehicles))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Subject joins the prefix and a sanitized line token.
func Subject(prefix, lineID string) string {
	return strings.TrimSuffix(prefix, ".") + "." + subjectToken(lineID)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
