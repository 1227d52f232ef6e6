package ports

// Metric names understood by Observability implementations.
const (
	MetricPacketIn             = "aegis_sdn_packet_in_total"
	MetricFlowsInstalled       = "aegis_sdn_flows_installed_total"
	MetricFlowInstallFailures  = "aegis_sdn_flow_install_failures_total"
	MetricPacketOutFailures    = "aegis_sdn_packet_out_failures_total"
	MetricStatsRequestFailures = "aegis_sdn_stats_request_failures_total"
	MetricStatsRepliesIgnored  = "aegis_sdn_stats_replies_ignored_total"
	MetricMigrations           = "aegis_sdn_migrations_total"
	MetricMigrationsSkipped    = "aegis_sdn_migrations_skipped_total"
	MetricEventsExported       = "aegis_sdn_events_exported_total"
	MetricEventsDropped        = "aegis_sdn_events_dropped_total"
	MetricDLQ                  = "aegis_sdn_dlq_total"

	MetricThreshold     = "aegis_sdn_threshold"
	MetricQueueLength   = "aegis_sdn_queue_length"
	MetricJournalSize   = "aegis_sdn_journal_size_bytes"
	MetricSwitches      = "aegis_sdn_switches"
	MetricControllers   = "aegis_sdn_controllers"
	MetricRoundLatency  = "aegis_sdn_monitor_round_seconds"
	MetricExportLatency = "aegis_sdn_export_latency_seconds"

	MetricControllerLoad = "aegis_sdn_controller_load"
)
