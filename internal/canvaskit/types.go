package canvaskit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrRuleViolation = errors.New("connection rule violation")
	ErrSelfLoop      = errors.New("self loop connection")
	ErrCrossCanvas   = errors.New("connection endpoints on different canvases")
	ErrLocked        = errors.New("node is locked")
	ErrUnauthorized  = errors.New("unauthorized")
)

const (
	MinNodeWidth  = 40.0
	MinNodeHeight = 40.0
	MinZoom       = 0.1
	MaxZoom       = 3.0

	DefaultNodeWidth  = 300.0
	DefaultNodeHeight = 200.0
	DefaultDocWidth   = 400.0
	DefaultDocHeight  = 300.0
)

type NodeType string

const (
	NodeProblem   NodeType = "problem"
	NodeObjective NodeType = "objective"
	NodeKeyResult NodeType = "keyresult"
	NodeMetric    NodeType = "metric"
	NodeDoc       NodeType = "doc"
	NodeAgent     NodeType = "agent"
	NodeSkill     NodeType = "skill"
	NodeWebhook   NodeType = "webhook"
	NodeAPI       NodeType = "api"
	NodeMCP       NodeType = "mcp"
	NodeCustom    NodeType = "custom"
)

// AllNodeTypes lists the closed enumeration in declaration order.
var AllNodeTypes = []NodeType{
	NodeProblem, NodeObjective, NodeKeyResult, NodeMetric, NodeDoc,
	NodeAgent, NodeSkill, NodeWebhook, NodeAPI, NodeMCP, NodeCustom,
}

func (t NodeType) Valid() bool {
	for _, known := range AllNodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

type WorkflowStage string

const (
	StageResearch       WorkflowStage = "research"
	StagePRDReview      WorkflowStage = "prd_review"
	StageUXReview       WorkflowStage = "ux_review"
	StageTechSpec       WorkflowStage = "tech_spec"
	StageProjectKickoff WorkflowStage = "project_kickoff"
	StageDevelopment    WorkflowStage = "development"
	StageQA             WorkflowStage = "qa"
	StageLaunch         WorkflowStage = "launch"
	StageRetrospective  WorkflowStage = "retrospective"
)

func (s WorkflowStage) Valid() bool {
	switch s {
	case StageResearch, StagePRDReview, StageUXReview, StageTechSpec,
		StageProjectKickoff, StageDevelopment, StageQA, StageLaunch,
		StageRetrospective:
		return true
	}
	return false
}

// AnchorPosition names the edge or corner of a node's bounding box a
// connection attaches to.
type AnchorPosition string

const (
	AnchorTop         AnchorPosition = "top"
	AnchorBottom      AnchorPosition = "bottom"
	AnchorLeft        AnchorPosition = "left"
	AnchorRight       AnchorPosition = "right"
	AnchorTopLeft     AnchorPosition = "top-left"
	AnchorTopRight    AnchorPosition = "top-right"
	AnchorBottomLeft  AnchorPosition = "bottom-left"
	AnchorBottomRight AnchorPosition = "bottom-right"
)

type ConnectionStyle string

const (
	StyleSolid  ConnectionStyle = "solid"
	StyleDashed ConnectionStyle = "dashed"
	StyleDotted ConnectionStyle = "dotted"
)

type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// ClampZoom bounds a zoom factor to the configured range.
func ClampZoom(zoom float64) float64 {
	return math.Max(MinZoom, math.Min(MaxZoom, zoom))
}

type Canvas struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ViewportX   float64   `json:"viewport_x"`
	ViewportY   float64   `json:"viewport_y"`
	ZoomLevel   float64   `json:"zoom_level"`
	GridEnabled bool      `json:"grid_enabled"`
	SnapToGrid  bool      `json:"snap_to_grid"`
	GridSize    int       `json:"grid_size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Canvas) Viewport() Viewport {
	return Viewport{X: c.ViewportX, Y: c.ViewportY, Zoom: c.ZoomLevel}
}

type Node struct {
	ID            int64         `json:"id"`
	CanvasID      int64         `json:"canvas_id"`
	Name          string        `json:"name"`
	Type          NodeType      `json:"node_type"`
	X             float64       `json:"position_x"`
	Y             float64       `json:"position_y"`
	Width         float64       `json:"width"`
	Height        float64       `json:"height"`
	Content       string        `json:"content,omitempty"`
	Config        NodeConfig    `json:"config,omitempty"`
	Color         string        `json:"color,omitempty"`
	BorderColor   string        `json:"border_color,omitempty"`
	IsLocked      bool          `json:"is_locked"`
	IsCollapsed   bool          `json:"is_collapsed"`
	ZIndex        int           `json:"z_index"`
	WorkflowStage WorkflowStage `json:"workflow_stage,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// nodeAlias breaks the UnmarshalJSON recursion while keeping every field
// except the config payload, which is decoded by node type afterwards.
type nodeAlias Node

type nodeWire struct {
	*nodeAlias
	Config json.RawMessage `json:"config,omitempty"`
}

func (n *Node) UnmarshalJSON(data []byte) error {
	wire := nodeWire{nodeAlias: (*nodeAlias)(n)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.Config) == 0 || string(wire.Config) == "null" {
		n.Config = nil
		return nil
	}
	cfg, err := DecodeNodeConfig(n.Type, wire.Config)
	if err != nil {
		return err
	}
	n.Config = cfg
	return nil
}

// Validate checks the geometry invariants shared by create and update.
func (n *Node) Validate() error {
	if !n.Type.Valid() {
		return fmt.Errorf("%w: unknown node type %q", ErrInvalidInput, n.Type)
	}
	for _, v := range []float64{n.X, n.Y, n.Width, n.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: node geometry must be finite", ErrInvalidInput)
		}
	}
	if n.Width < MinNodeWidth || n.Height < MinNodeHeight {
		return fmt.Errorf("%w: node size below %gx%g minimum", ErrInvalidInput, MinNodeWidth, MinNodeHeight)
	}
	if n.WorkflowStage != "" && !n.WorkflowStage.Valid() {
		return fmt.Errorf("%w: unknown workflow stage %q", ErrInvalidInput, n.WorkflowStage)
	}
	return nil
}

type Connection struct {
	ID           int64           `json:"id"`
	CanvasID     int64           `json:"canvas_id"`
	SourceNodeID int64           `json:"source_node_id"`
	TargetNodeID int64           `json:"target_node_id"`
	SourceAnchor AnchorPosition  `json:"source_anchor,omitempty"`
	TargetAnchor AnchorPosition  `json:"target_anchor,omitempty"`
	Type         string          `json:"connection_type,omitempty"`
	Style        ConnectionStyle `json:"style,omitempty"`
	Color        string          `json:"color,omitempty"`
	Label        string          `json:"label,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// References reports whether the connection touches the given node.
func (c *Connection) References(nodeID int64) bool {
	return c.SourceNodeID == nodeID || c.TargetNodeID == nodeID
}

// NodePosition is one entry of a batch position update and of a layout
// snapshot.
type NodePosition struct {
	ID int64   `json:"id"`
	X  float64 `json:"position_x"`
	Y  float64 `json:"position_y"`
}

type BatchPositionUpdate struct {
	Nodes []NodePosition `json:"nodes"`
}

type CreateCanvasRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateCanvasRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	ViewportX   *float64 `json:"viewport_x,omitempty"`
	ViewportY   *float64 `json:"viewport_y,omitempty"`
	ZoomLevel   *float64 `json:"zoom_level,omitempty"`
	GridEnabled *bool    `json:"grid_enabled,omitempty"`
	SnapToGrid  *bool    `json:"snap_to_grid,omitempty"`
	GridSize    *int     `json:"grid_size,omitempty"`
}

type CreateNodeRequest struct {
	Name        string     `json:"name"`
	Type        NodeType   `json:"node_type"`
	X           float64    `json:"position_x"`
	Y           float64    `json:"position_y"`
	Width       float64    `json:"width,omitempty"`
	Height      float64    `json:"height,omitempty"`
	Content     string     `json:"content,omitempty"`
	Config      NodeConfig `json:"config,omitempty"`
	Color       string     `json:"color,omitempty"`
	BorderColor string     `json:"border_color,omitempty"`
}

type createNodeAlias CreateNodeRequest

type createNodeWire struct {
	*createNodeAlias
	Config json.RawMessage `json:"config,omitempty"`
}

func (r *CreateNodeRequest) UnmarshalJSON(data []byte) error {
	wire := createNodeWire{createNodeAlias: (*createNodeAlias)(r)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.Config) == 0 || string(wire.Config) == "null" {
		r.Config = nil
		return nil
	}
	cfg, err := DecodeNodeConfig(r.Type, wire.Config)
	if err != nil {
		return err
	}
	r.Config = cfg
	return nil
}

type UpdateNodeRequest struct {
	Name          *string         `json:"name,omitempty"`
	X             *float64        `json:"position_x,omitempty"`
	Y             *float64        `json:"position_y,omitempty"`
	Width         *float64        `json:"width,omitempty"`
	Height        *float64        `json:"height,omitempty"`
	Content       *string         `json:"content,omitempty"`
	Config        json.RawMessage `json:"config,omitempty"`
	Color         *string         `json:"color,omitempty"`
	BorderColor   *string         `json:"border_color,omitempty"`
	IsLocked      *bool           `json:"is_locked,omitempty"`
	IsCollapsed   *bool           `json:"is_collapsed,omitempty"`
	ZIndex        *int            `json:"z_index,omitempty"`
	WorkflowStage *WorkflowStage  `json:"workflow_stage,omitempty"`
}

type CreateConnectionRequest struct {
	SourceNodeID int64           `json:"source_node_id"`
	TargetNodeID int64           `json:"target_node_id"`
	SourceAnchor AnchorPosition  `json:"source_anchor,omitempty"`
	TargetAnchor AnchorPosition  `json:"target_anchor,omitempty"`
	Type         string          `json:"connection_type,omitempty"`
	Style        ConnectionStyle `json:"style,omitempty"`
	Color        string          `json:"color,omitempty"`
	Label        string          `json:"label,omitempty"`
}

// CanvasDocument is the full fetch-canvas payload: the canvas plus every
// node and connection it owns.
type CanvasDocument struct {
	Canvas      Canvas       `json:"canvas"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}
