package common

// ServiceName is reported by the health endpoints
const ServiceName = "covercraft-coordinator"
