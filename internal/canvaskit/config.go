package canvaskit

import (
	"encoding/json"
	"fmt"
)

// NodeConfig is the type-specific payload carried by a node. The concrete
// variant is keyed by the node's type; decoding an unknown shape for a
// known type is an input error, never silently ignored.
type NodeConfig interface {
	ConfigType() NodeType
}

type DocConfig struct {
	AutoSave     bool `json:"autoSave,omitempty"`
	SaveInterval int  `json:"saveInterval,omitempty"`
}

func (*DocConfig) ConfigType() NodeType { return NodeDoc }

type SkillConfig struct {
	Service    string   `json:"service"`
	Connected  bool     `json:"connected,omitempty"`
	Endpoints  []string `json:"endpoints,omitempty"`
	LastSyncAt string   `json:"lastSyncAt,omitempty"`
	SyncStatus string   `json:"syncStatus,omitempty"`
	SyncError  string   `json:"syncError,omitempty"`
}

func (*SkillConfig) ConfigType() NodeType { return NodeSkill }

type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

func (*WebhookConfig) ConfigType() NodeType { return NodeWebhook }

type APIConfig struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	ResponseMapping map[string]string `json:"responseMapping,omitempty"`
}

func (*APIConfig) ConfigType() NodeType { return NodeAPI }

type MCPConfig struct {
	ServerURL string   `json:"serverUrl"`
	Protocol  string   `json:"protocol"`
	Tools     []string `json:"tools,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

func (*MCPConfig) ConfigType() NodeType { return NodeMCP }

type AgentConfig struct {
	Instructions string  `json:"instructions"`
	ContextType  string  `json:"contextType,omitempty"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"maxTokens,omitempty"`
}

func (*AgentConfig) ConfigType() NodeType { return NodeAgent }

type ObjectiveConfig struct {
	Status    string `json:"status"`
	Level     string `json:"level,omitempty"`
	Owner     string `json:"owner,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Quarter   string `json:"quarter,omitempty"`
}

func (*ObjectiveConfig) ConfigType() NodeType { return NodeObjective }

type KeyResultConfig struct {
	TargetValue  float64 `json:"targetValue"`
	CurrentValue float64 `json:"currentValue"`
	StartValue   float64 `json:"startValue,omitempty"`
	Unit         string  `json:"unit,omitempty"`
	MetricType   string  `json:"metricType,omitempty"`
	Status       string  `json:"status,omitempty"`
}

func (*KeyResultConfig) ConfigType() NodeType { return NodeKeyResult }

type MetricConfig struct {
	Value           float64 `json:"value"`
	PreviousValue   float64 `json:"previousValue,omitempty"`
	Unit            string  `json:"unit,omitempty"`
	Format          string  `json:"format,omitempty"`
	Trend           string  `json:"trend,omitempty"`
	Source          string  `json:"source,omitempty"`
	RefreshInterval int     `json:"refreshInterval,omitempty"`
}

func (*MetricConfig) ConfigType() NodeType { return NodeMetric }

type ProblemConfig struct {
	Problems        []string `json:"problems,omitempty"`
	NotifyOnMatch   bool     `json:"notifyOnMatch,omitempty"`
	AutoCreateTasks bool     `json:"autoCreateTasks,omitempty"`
}

func (*ProblemConfig) ConfigType() NodeType { return NodeProblem }

// CustomConfig carries free-form configuration for custom nodes.
type CustomConfig map[string]any

func (CustomConfig) ConfigType() NodeType { return NodeCustom }

// DecodeNodeConfig decodes a raw config payload into the variant matching
// the node type.
func DecodeNodeConfig(t NodeType, raw json.RawMessage) (NodeConfig, error) {
	var (
		cfg NodeConfig
		err error
	)
	switch t {
	case NodeDoc:
		cfg, err = decodeConfigInto(raw, &DocConfig{})
	case NodeSkill:
		cfg, err = decodeConfigInto(raw, &SkillConfig{})
	case NodeWebhook:
		cfg, err = decodeConfigInto(raw, &WebhookConfig{})
	case NodeAPI:
		cfg, err = decodeConfigInto(raw, &APIConfig{})
	case NodeMCP:
		cfg, err = decodeConfigInto(raw, &MCPConfig{})
	case NodeAgent:
		cfg, err = decodeConfigInto(raw, &AgentConfig{})
	case NodeObjective:
		cfg, err = decodeConfigInto(raw, &ObjectiveConfig{})
	case NodeKeyResult:
		cfg, err = decodeConfigInto(raw, &KeyResultConfig{})
	case NodeMetric:
		cfg, err = decodeConfigInto(raw, &MetricConfig{})
	case NodeProblem:
		cfg, err = decodeConfigInto(raw, &ProblemConfig{})
	case NodeCustom:
		out := CustomConfig{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: no config variant for node type %q", ErrInvalidInput, t)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeConfigInto[T NodeConfig](raw json.RawMessage, out T) (NodeConfig, error) {
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return out, nil
}
