package wallbox

// Method identifies one device operation. The set is closed: every
// operation the supervisor can enqueue is listed here, and Invoke
// rejects anything else.
type Method string

// Supported device operations.
const (
	MethodInfoSerialGet        Method = "info_serial_get"
	MethodInfoFirmwaresGet     Method = "info_firmwares_get"
	MethodSetupGet             Method = "setup_get"
	MethodConfigLoadGet        Method = "config_load_get"
	MethodConfigLoadSet        Method = "config_load_set"
	MethodConfigNetworkStatus  Method = "config_network_status"
	MethodAtmelErrorGet        Method = "atmel_error_get"
	MethodTransactionGet       Method = "transaction_get"
	MethodTransactionStart     Method = "transaction_start"
	MethodTransactionStop      Method = "transaction_stop"
	MethodTransactionLatestGet Method = "transaction_latest_get"
	MethodRFIDGet              Method = "rfid_get"
	MethodRFIDScan             Method = "rfid_scan"
	MethodRFIDAdd              Method = "rfid_add"
	MethodRFIDDelete           Method = "rfid_delete"
	MethodUtilRestart          Method = "util_restart"
)

// String returns the method's wire name for logging.
func (m Method) String() string {
	return string(m)
}
