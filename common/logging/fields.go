package logging

const (
	FieldComponent = "component"

	FieldDuration = "duration"
	FieldAddress  = "address"

	FieldSessionId = "sessionId"
	FieldRequestId = "reqSeq"
	FieldCommand   = "command"

	FieldAppId       = "appId"
	FieldProgramHash = "programHash"
	FieldPc          = "pc"
	FieldStackDepth  = "stackDepth"
	FieldFrameDepth  = "frameDepth"
	FieldFrameName   = "frameName"

	FieldBreakpointId = "breakpointId"
	FieldPath         = "path"
	FieldLine         = "line"

	FieldEvent = "event"
)
