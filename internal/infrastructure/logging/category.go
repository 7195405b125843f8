package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	Internal        Category = "Internal"
	Postgres        Category = "Postgres"
	MongoDB         Category = "MongoDB"
	Redis           Category = "Redis"
	RabbitMQ        Category = "RabbitMQ"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
	Stream          Category = "Stream"
	Lifecycle       Category = "Lifecycle"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Stream
	Connect    SubCategory = "Connect"
	Disconnect SubCategory = "Disconnect"
	Delivery   SubCategory = "Delivery"

	// Lifecycle
	RoomCreate  SubCategory = "RoomCreate"
	RoomJoin    SubCategory = "RoomJoin"
	RoomClose   SubCategory = "RoomClose"
	RoundStart  SubCategory = "RoundStart"
	RoundEnd    SubCategory = "RoundEnd"
	RoundAbort  SubCategory = "RoundAbort"
	PlayerLeave SubCategory = "PlayerLeave"

	// Persistence / messaging
	Migration SubCategory = "Migration"
	Select    SubCategory = "Select"
	Insert    SubCategory = "Insert"
	Update    SubCategory = "Update"
	Delete    SubCategory = "Delete"
	Publish   SubCategory = "Publish"
	Consume   SubCategory = "Consume"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	RequestBody  ExtraKey = "RequestBody"
	ResponseBody ExtraKey = "ResponseBody"
	ErrorMessage ExtraKey = "ErrorMessage"
	RoomID       ExtraKey = "RoomID"
	UserID       ExtraKey = "UserID"
	RoomCode     ExtraKey = "RoomCode"
	StreamKind   ExtraKey = "StreamKind"
	RoutingKey   ExtraKey = "RoutingKey"
	Version      ExtraKey = "Version"
	Transport    ExtraKey = "Transport"
	UserName     ExtraKey = "UserName"
)
