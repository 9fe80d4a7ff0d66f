package ycmd

// Handler routes exposed by the backend's HTTP+JSON API. Taken from the ycmd
// example client and handler logic.
const (
	HandlerGetCompletions      = "/completions"
	HandlerRunCompleterCommand = "/run_completer_command"
	HandlerEventNotification   = "/event_notification"
	HandlerDefinedSubcommands  = "/defined_subcommands"
	HandlerDetailedDiagnostic  = "/detailed_diagnostic"
	HandlerLoadExtraConf       = "/load_extra_conf_file"
	HandlerIgnoreExtraConf     = "/ignore_extra_conf_file"
	HandlerDebugInfo           = "/debug_info"
	HandlerReady               = "/ready"
	HandlerHealthy             = "/healthy"
	HandlerShutdown            = "/shutdown"
)

// Event names for HandlerEventNotification. FileReadyToParse is the only one
// the backend strictly requires; the rest help it cache identifiers.
const (
	EventFileReadyToParse          = "FileReadyToParse"
	EventBufferUnload              = "BufferUnload"
	EventBufferVisit               = "BufferVisit"
	EventInsertLeave               = "InsertLeave"
	EventCurrentIdentifierFinished = "CurrentIdentifierFinished"
)

// Completer subcommands for HandlerRunCompleterCommand. Not every command is
// available for every filetype; HandlerDefinedSubcommands lists the valid set.
const (
	CommandGetType                   = "GetType"
	CommandGetParent                 = "GetParent"
	CommandGoToDeclaration           = "GoToDeclaration"
	CommandGoToDefinition            = "GoToDefinition"
	CommandGoTo                      = "GoTo"
	CommandGoToImprecise             = "GoToImprecise"
	CommandClearCompilationFlagCache = "ClearCompilationFlagCache"
)
