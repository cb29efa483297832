package model

type BatteryAction string

const (
	BatteryCharge    BatteryAction = "charge"
	BatteryDischarge BatteryAction = "discharge"
	BatteryHold      BatteryAction = "hold"
)

type GridAction string

const (
	GridBuy  GridAction = "buy"
	GridSell GridAction = "sell"
	GridNone GridAction = "none"
)

type EVChargingRate string

const (
	EVFast   EVChargingRate = "fast"
	EVNormal EVChargingRate = "normal"
	EVSlow   EVChargingRate = "slow"
)

type Priority string

const (
	PriorityStorage  Priority = "storage"
	PriorityDemand   Priority = "demand"
	PriorityGrid     Priority = "grid"
	PriorityBalanced Priority = "balanced"
)

type GridStatus string

const (
	GridConnected GridStatus = "Connected"
	GridImporting GridStatus = "Importing"
	GridExporting GridStatus = "Exporting"
	GridOffline   GridStatus = "Offline"
)

// GridStatusFor maps a decision's grid action to the reported grid status.
// Offline is never produced by the engine.
func GridStatusFor(a GridAction) GridStatus {
	switch a {
	case GridBuy:
		return GridImporting
	case GridSell:
		return GridExporting
	default:
		return GridConnected
	}
}

// Decision is the rule engine output for one tick.
type Decision struct {
	BatteryAction  BatteryAction  `json:"batteryAction"`
	GridAction     GridAction     `json:"gridAction"`
	EVChargingRate EVChargingRate `json:"evChargingRate"`
	Priority       Priority       `json:"priority"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
}

// Snapshot is the instantaneous system status published after every tick.
// Power values are kW, BatteryLevel and Efficiency are percent, CarbonSaved is kg CO2.
type Snapshot struct {
	Solar           float64    `json:"solarGeneration"`
	Wind            float64    `json:"windGeneration"`
	EVDemand        float64    `json:"evDemand"`
	BatteryLevel    float64    `json:"batteryLevel"`
	GridStatus      GridStatus `json:"gridStatus"`
	TotalGeneration float64    `json:"totalGeneration"`
	TotalDemand     float64    `json:"totalDemand"`
	Efficiency      float64    `json:"efficiency"`
	CarbonSaved     float64    `json:"carbonSaved"`
	Decision        *Decision  `json:"aiDecision,omitempty"`
}

const (
	InitialBatteryLevel = 75.0
	InitialEfficiency   = 85.0
)

// InitialSnapshot returns the status shown before the first tick and after a reset.
func InitialSnapshot() Snapshot {
	return Snapshot{
		BatteryLevel: InitialBatteryLevel,
		GridStatus:   GridConnected,
		Efficiency:   InitialEfficiency,
	}
}

// HistoryRecord is a rounded per-tick sample for charting.
// Tick is the absolute simulated hour, Hour is the hour of day.
type HistoryRecord struct {
	Tick       int     `json:"tick"`
	Hour       int     `json:"time"`
	Solar      float64 `json:"solar"`
	Wind       float64 `json:"wind"`
	Demand     float64 `json:"demand"`
	Battery    float64 `json:"battery"`
	Surplus    float64 `json:"surplus"`
	Efficiency float64 `json:"efficiency"`
}

type Field string

const (
	FieldSolar           Field = "solarGeneration"
	FieldWind            Field = "windGeneration"
	FieldEVDemand        Field = "evDemand"
	FieldBatteryLevel    Field = "batteryLevel"
	FieldTotalGeneration Field = "totalGeneration"
	FieldTotalDemand     Field = "totalDemand"
	FieldEfficiency      Field = "efficiency"
	FieldCarbonSaved     Field = "carbonSaved"
)

// FieldInfo holds display name and unit for a snapshot metric.
type FieldInfo struct {
	Name string
	Unit string
}

// FieldCatalog maps every numeric snapshot field to its display name and unit.
var FieldCatalog = map[Field]FieldInfo{
	FieldSolar:           {Name: "Solar Generation", Unit: "kW"},
	FieldWind:            {Name: "Wind Generation", Unit: "kW"},
	FieldEVDemand:        {Name: "EV Demand", Unit: "kW"},
	FieldBatteryLevel:    {Name: "Battery Level", Unit: "%"},
	FieldTotalGeneration: {Name: "Total Generation", Unit: "kW"},
	FieldTotalDemand:     {Name: "Total Demand", Unit: "kW"},
	FieldEfficiency:      {Name: "System Efficiency", Unit: "%"},
	FieldCarbonSaved:     {Name: "Carbon Saved", Unit: "kg"},
}

// FieldOrder lists the catalog fields in display order.
var FieldOrder = []Field{
	FieldSolar,
	FieldWind,
	FieldEVDemand,
	FieldBatteryLevel,
	FieldTotalGeneration,
	FieldTotalDemand,
	FieldEfficiency,
	FieldCarbonSaved,
}
