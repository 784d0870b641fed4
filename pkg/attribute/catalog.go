package attribute

// Attribute ids of the built-in catalog
const (
	FrequencyCenter   = "FREQUENCY_CENTER"
	FrequencySpan     = "FREQUENCY_SPAN"
	SweepTimeAuto     = "SWEEP_TIME_AUTO"
	SweepTime         = "SWEEP_TIME"
	ReferenceLevel    = "REFERENCE_LEVEL"
	TraceMode         = "TRACE_MODE"
	MarkerEnabled     = "MARKER_ENABLED"
	MarkerTrace       = "MARKER_TRACE"
	MarkerPosition    = "MARKER_POSITION"
	MarkerAmplitude   = "MARKER_AMPLITUDE"
	DisplayUpdate     = "DISPLAY_UPDATE"
	InstrumentMode    = "INSTRUMENT_MODE"

	LTEDownlinkSubframeAllocCount = "LTE_DL_SUBFRAME_ALLOC_COUNT"
	LTEDownlinkAllocModulation    = "LTE_DL_ALLOC_MODULATION"
	LTEDownlinkAllocRBCount       = "LTE_DL_ALLOC_RB_COUNT"
	LTEDownlinkAllocRBOffset      = "LTE_DL_ALLOC_RB_OFFSET"
	LTEDownlinkAllocPower         = "LTE_DL_ALLOC_POWER"
	LTEResultEVMAll               = "LTE_RESULT_EVM_ALL"
	LTEResultFrequencyError       = "LTE_RESULT_FREQUENCY_ERROR"

	GSMSpectrumLimitState = "GSM_SPECTRUM_LIMIT_STATE"
	GSMSlotToMeasure      = "GSM_SLOT_TO_MEASURE"

	SpectrogramEnabled    = "SPECTROGRAM_ENABLED"
	SpectrogramFrameCount = "SPECTROGRAM_FRAME_COUNT"

	VSAMarkerEnabled  = "VSA_MARKER_ENABLED"
	VSAMarkerPosition = "VSA_MARKER_POSITION"
	VSAMarkerValue    = "VSA_MARKER_VALUE"
	VSASymbolRate     = "VSA_SYMBOL_RATE"
)

var (
	winSlot    = Slot{Name: "Win", Min: 1, Max: 16}
	traceSlot  = Slot{Name: "TR", Min: 1, Max: 6}
	markerSlot = Slot{Name: "M", Min: 1, Max: 16}
	vsaMarker  = Slot{Name: "M", Min: 1, Max: 4}
	sfSlot     = Slot{Name: "SFR", Min: 0, Max: 9}
	allocSlot  = Slot{Name: "AL", Min: 0, Max: 110}
	statSlot   = Slot{Name: "Stat", Tokens: []string{"Min", "Max", "Aver"}}
	refSlot    = Slot{Name: "Ref", Tokens: []string{"ABS", "REL"}}
)

// Default returns a fresh copy of the built-in catalog
func Default() *Table {
	return NewTable(
		// spectrum analyzer base
		Attribute{ID: FrequencyCenter, Command: "SENS{Win}:FREQ:CENT", Kind: KindReal, Slots: []Slot{winSlot}},
		Attribute{ID: FrequencySpan, Command: "SENS{Win}:FREQ:SPAN", Kind: KindReal, Slots: []Slot{winSlot}},
		Attribute{ID: SweepTimeAuto, Command: "SENS{Win}:SWE:TIME:AUTO", Kind: KindBool, Slots: []Slot{winSlot}},
		Attribute{ID: SweepTime, Command: "SENS{Win}:SWE:TIME", Kind: KindReal, Slots: []Slot{winSlot}},
		Attribute{ID: ReferenceLevel, Command: "DISP{Win}:TRAC:Y:RLEV", Kind: KindReal, Slots: []Slot{winSlot}},
		Attribute{ID: TraceMode, Command: "DISP{Win}:TRAC{TR}:MODE", Kind: KindString,
			Slots: []Slot{winSlot, traceSlot},
			Enum:  []string{"WRIT", "AVER", "MAXH", "MINH", "VIEW", "BLAN"}},
		Attribute{ID: MarkerEnabled, Command: "CALC{Win}:MARK{M}:STAT", Kind: KindBool, Slots: []Slot{winSlot, markerSlot}},
		Attribute{ID: MarkerTrace, Command: "CALC{Win}:MARK{M}:TRAC", Kind: KindInt, Slots: []Slot{winSlot, markerSlot}},
		Attribute{ID: MarkerPosition, Command: "CALC{Win}:MARK{M}:X", Kind: KindReal, Slots: []Slot{winSlot, markerSlot}},
		Attribute{ID: MarkerAmplitude, Command: "CALC{Win}:MARK{M}:Y", Kind: KindReal, Access: ReadOnly,
			Slots: []Slot{winSlot, markerSlot}},
		Attribute{ID: DisplayUpdate, Command: "SYST:DISP:UPD", Kind: KindBool},
		Attribute{ID: InstrumentMode, Command: "INST:SEL", Kind: KindString,
			Enum: []string{"SAN", "LTE", "GSM", "DDEM", "IQ"}},

		// LTE downlink (K100/K101/K102/K104)
		Attribute{ID: LTEDownlinkSubframeAllocCount, Command: "CONF:LTE:DL:SUBF{SFR}:ALC", Kind: KindInt,
			Slots: []Slot{sfSlot}},
		Attribute{ID: LTEDownlinkAllocModulation, Command: "CONF:LTE:DL:SUBF{SFR}:ALL{AL}:MOD", Kind: KindString,
			Slots: []Slot{sfSlot, allocSlot},
			Enum:  []string{"QPSK", "QAM16", "QAM64", "QAM256"}},
		Attribute{ID: LTEDownlinkAllocRBCount, Command: "CONF:LTE:DL:SUBF{SFR}:ALL{AL}:RBC", Kind: KindInt,
			Slots: []Slot{sfSlot, allocSlot}},
		Attribute{ID: LTEDownlinkAllocRBOffset, Command: "CONF:LTE:DL:SUBF{SFR}:ALL{AL}:RBOF", Kind: KindInt,
			Slots: []Slot{sfSlot, allocSlot}},
		Attribute{ID: LTEDownlinkAllocPower, Command: "CONF:LTE:DL:SUBF{SFR}:ALL{AL}:POW", Kind: KindReal,
			Slots: []Slot{sfSlot, allocSlot}},
		Attribute{ID: LTEResultEVMAll, Command: "FETC:SUMM:EVM:ALL:{Stat}", Kind: KindReal, Access: ReadOnly,
			Slots: []Slot{statSlot}},
		Attribute{ID: LTEResultFrequencyError, Command: "FETC:SUMM:FERR:{Stat}", Kind: KindReal, Access: ReadOnly,
			Slots: []Slot{statSlot}},

		// GSM (K10)
		Attribute{ID: GSMSpectrumLimitState, Command: "CALC{Win}:LIM:SPEC:{Ref}:STAT", Kind: KindBool,
			Slots: []Slot{winSlot, refSlot}},
		Attribute{ID: GSMSlotToMeasure, Command: "CONF:CHAN:SLOT:MEAS", Kind: KindInt},

		// spectrogram
		Attribute{ID: SpectrogramEnabled, Command: "CALC{Win}:SGR:STAT", Kind: KindBool, Slots: []Slot{winSlot}},
		Attribute{ID: SpectrogramFrameCount, Command: "CALC{Win}:SGR:FRAM:COUN", Kind: KindInt, Slots: []Slot{winSlot}},

		// vector signal analysis (K70)
		Attribute{ID: VSAMarkerEnabled, Command: "CALC{Win}:MARK{M}:STAT", Kind: KindBool, Slots: []Slot{winSlot, vsaMarker}},
		Attribute{ID: VSAMarkerPosition, Command: "CALC{Win}:MARK{M}:X", Kind: KindReal, Slots: []Slot{winSlot, vsaMarker}},
		Attribute{ID: VSAMarkerValue, Command: "CALC{Win}:MARK{M}:Y", Kind: KindReal, Access: ReadOnly,
			Slots: []Slot{winSlot, vsaMarker}},
		Attribute{ID: VSASymbolRate, Command: "SENS:DDEM:SRAT", Kind: KindReal},
	)
}
